package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nhd2106/mongo-safe/internal/engine"
	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/runner"
	"github.com/nhd2106/mongo-safe/internal/sources"
)

const maxScanBody = 4 << 20

type scanReq struct {
	Text     string `json:"text"`
	SourceID string `json:"source_id,omitempty"`
}

// POST /api/v1/scan scans one text in memory. Nothing is persisted.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var in scanReq
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScanBody))
	if err := dec.Decode(&in); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.err(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		s.err(w, http.StatusBadRequest, "invalid json")
		return
	}

	cat := s.catalog()
	text := sources.Normalize(in.Text)
	found := engine.Scan(text, cat.Select(s.Settings), in.SourceID)
	items := runner.Convert(in.SourceID, found, cat)
	if items == nil {
		items = []ir.Finding{}
	}
	s.logger().Debug("adhoc scan",
		zap.String("source", in.SourceID),
		zap.Int("bytes", len(text)),
		zap.Int("findings", len(items)),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"source_id": in.SourceID,
		"skipped":   engine.IsCatalogSource(in.SourceID),
		"items":     items,
		"count":     len(items),
	})
}
