package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/pagenode-backend/internal/logger"
)

const maxErrorBodyBytes = 1024

// ChunkVector is one embedded chunk headed for the collection. The point id
// is the chunk's UUID; the payload mirrors what the LLM stages and the
// delete-by-document purge filter on.
type ChunkVector struct {
	ID         string
	Values     []float32
	DocumentID string
	ChunkIndex int
	PageNumber int
}

// VectorStore is the chunk-embedding store consumed by the ingestion
// pipeline and by document deletion.
type VectorStore interface {
	Upsert(ctx context.Context, vectors []ChunkVector) error
	// DeleteByDocument removes every vector belonging to the document.
	// Absence of prior entries is not an error.
	DeleteByDocument(ctx context.Context, documentID string) error
}

type vectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

func NewVectorStore(log *logger.Logger, cfg Config) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}

	s := &vectorStore{
		log:     log.With("client", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if err := s.ensureReady(context.Background()); err != nil {
		return nil, err
	}

	log.Info("Qdrant vector store ready",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
	)
	return s, nil
}

func (s *vectorStore) Upsert(ctx context.Context, vectors []ChunkVector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}

	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if len(v.Values) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("vector %q has empty values", id), nil)
		}
		if s.cfg.VectorDim > 0 && len(v.Values) != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("vector %q dimension mismatch: expected=%d got=%d", id, s.cfg.VectorDim, len(v.Values)), nil)
		}
		points = append(points, map[string]any{
			"id":     id,
			"vector": v.Values,
			"payload": map[string]any{
				"document_id": v.DocumentID,
				"chunk_index": v.ChunkIndex,
				"page_number": v.PageNumber,
			},
		})
	}

	req := map[string]any{"points": points}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

func (s *vectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	const op = "delete_by_document"
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return opErr(op, OperationErrorValidation, "document id is required", nil)
	}

	req := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

// ensureReady checks the server and creates the collection when it does not
// exist yet.
func (s *vectorStore) ensureReady(ctx context.Context) error {
	const op = "bootstrap"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	readyReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode),
		}
	}

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err = s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	if err != nil {
		var oe *OperationError
		if !errors.As(err, &oe) || oe.StatusCode != http.StatusNotFound {
			return err
		}
		create := map[string]any{
			"vectors": map[string]any{
				"size":     s.cfg.VectorDim,
				"distance": "Cosine",
			},
		}
		return s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), create, nil)
	}

	if size := info.Config.Params.Vectors.Size; size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message: fmt.Sprintf("qdrant collection %q vector size mismatch: expected=%d actual=%d",
				s.cfg.Collection, s.cfg.VectorDim, size),
		}
	}
	return nil
}

func (s *vectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > maxErrorBodyBytes {
			msg = msg[:maxErrorBodyBytes]
		}
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}
	if out == nil {
		return nil
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode envelope failed", err)
	}
	if len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, msg string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return opErr(op, OperationErrorTimeout, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, msg, err)
	}
	return opErr(op, OperationErrorTransportFailed, msg, err)
}
