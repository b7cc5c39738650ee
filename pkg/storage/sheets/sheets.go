// Package sheets implements storage.TabularStore against a spreadsheet values
// API. Each collection is one sheet; its first line is the header.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sheetql/sheetql/pkg/logger"
	"github.com/sheetql/sheetql/pkg/storage"
	"github.com/sheetql/sheetql/pkg/telemetry"
)

var tracer = otel.Tracer("sheetql/pkg/storage/sheets")

var ErrMissingSpreadsheetID = errors.New("missing spreadsheet id")

// Datastore is a [storage.TabularStore] backed by one spreadsheet.
type Datastore struct {
	spreadsheetID string
	baseURL       string
	client        *retryablehttp.Client
	tokens        TokenSource
	logger        logger.Logger
}

var _ storage.TabularStore = (*Datastore)(nil)

// valueRange is the request body of the values update and append calls.
type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension"`
	Values         [][]string `json:"values"`
}

// New creates a Datastore for the spreadsheet named by cfg.
func New(cfg *Config) (*Datastore, error) {
	if cfg.SpreadsheetID == "" {
		return nil, ErrMissingSpreadsheetID
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	return &Datastore{
		spreadsheetID: cfg.SpreadsheetID,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		client:        newHTTPClient(cfg),
		tokens:        cfg.TokenSource,
		logger:        cfg.Logger,
	}, nil
}

// Close releases idle connections.
func (s *Datastore) Close() {
	s.client.HTTPClient.CloseIdleConnections()
}

// IsReady reports whether the spreadsheet can be reached with the configured credentials.
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	endpoint := s.spreadsheetURL("") + "?" + url.Values{"fields": {"spreadsheetId"}}.Encode()
	if _, err := s.do(ctx, http.MethodGet, endpoint, "", nil); err != nil {
		return storage.ReadinessStatus{Message: err.Error()}, err
	}
	return storage.ReadinessStatus{IsReady: true}, nil
}

// FetchRows see [storage.TabularStore].FetchRows.
func (s *Datastore) FetchRows(ctx context.Context, collection string) (*storage.Table, error) {
	ctx, span := tracer.Start(ctx, "sheets.FetchRows", trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	table, err := s.fetch(ctx, collection)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", table.Len()))
	return table, nil
}

func (s *Datastore) fetch(ctx context.Context, collection string) (*storage.Table, error) {
	endpoint := s.valuesURL(quoteSheet(collection), "", url.Values{"majorDimension": {"ROWS"}})
	body, err := s.do(ctx, http.MethodGet, endpoint, collection, nil)
	if err != nil {
		return nil, err
	}
	return parseValues(body), nil
}

// AppendRow see [storage.TabularStore].AppendRow.
func (s *Datastore) AppendRow(ctx context.Context, collection string, row []string) error {
	ctx, span := tracer.Start(ctx, "sheets.AppendRow", trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	endpoint := s.valuesURL(quoteSheet(collection), ":append", url.Values{
		"valueInputOption": {"RAW"},
		"insertDataOption": {"INSERT_ROWS"},
	})
	_, err := s.do(ctx, http.MethodPost, endpoint, collection, &valueRange{
		MajorDimension: "ROWS",
		Values:         [][]string{row},
	})
	if err != nil {
		telemetry.TraceError(span, err)
		return err
	}
	return nil
}

// OverwriteRow see [storage.TabularStore].OverwriteRow. The range is re-read
// first so that an index outside the current rows is rejected instead of
// silently writing past the end.
func (s *Datastore) OverwriteRow(ctx context.Context, collection string, index int, row []string) error {
	ctx, span := tracer.Start(ctx, "sheets.OverwriteRow", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("index", index),
	))
	defer span.End()

	table, err := s.fetch(ctx, collection)
	if err != nil {
		telemetry.TraceError(span, err)
		return err
	}
	if index < 0 || index >= table.Len() {
		err := storage.InvalidRowIndexError(collection, index)
		telemetry.TraceError(span, err)
		return err
	}

	width := max(len(table.Headers), len(row))
	rng := rowRange(collection, index, width)
	endpoint := s.valuesURL(rng, "", url.Values{"valueInputOption": {"RAW"}})
	_, err = s.do(ctx, http.MethodPut, endpoint, collection, &valueRange{
		Range:          rng,
		MajorDimension: "ROWS",
		Values:         [][]string{storage.PadRow(row, width)},
	})
	if err != nil {
		telemetry.TraceError(span, err)
		return err
	}
	return nil
}

// OverwriteAll see [storage.TabularStore].OverwriteAll. The sheet is cleared
// before writing so no trailing row of a longer previous content survives.
// A missing sheet is added.
func (s *Datastore) OverwriteAll(ctx context.Context, collection string, headers []string, rows [][]string) error {
	ctx, span := tracer.Start(ctx, "sheets.OverwriteAll", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("rows", len(rows)),
	))
	defer span.End()

	err := s.clear(ctx, collection)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		s.logger.InfoWithContext(ctx, "adding sheet", zap.String("collection", collection))
		err = s.addSheet(ctx, collection)
	}
	if err != nil {
		telemetry.TraceError(span, err)
		return err
	}

	values := make([][]string, 0, len(rows)+1)
	values = append(values, headers)
	values = append(values, rows...)

	rng := quoteSheet(collection)
	endpoint := s.valuesURL(rng, "", url.Values{"valueInputOption": {"RAW"}})
	_, err = s.do(ctx, http.MethodPut, endpoint, collection, &valueRange{
		Range:          rng,
		MajorDimension: "ROWS",
		Values:         values,
	})
	if err != nil {
		telemetry.TraceError(span, err)
		return err
	}
	return nil
}

func (s *Datastore) clear(ctx context.Context, collection string) error {
	endpoint := s.valuesURL(quoteSheet(collection), ":clear", nil)
	_, err := s.do(ctx, http.MethodPost, endpoint, collection, struct{}{})
	return err
}

func (s *Datastore) addSheet(ctx context.Context, collection string) error {
	body := map[string]any{
		"requests": []map[string]any{
			{"addSheet": map[string]any{"properties": map[string]string{"title": collection}}},
		},
	}
	_, err := s.do(ctx, http.MethodPost, s.spreadsheetURL(":batchUpdate"), collection, body)
	return err
}

func (s *Datastore) spreadsheetURL(suffix string) string {
	return s.baseURL + "/" + url.PathEscape(s.spreadsheetID) + suffix
}

func (s *Datastore) valuesURL(rng, suffix string, query url.Values) string {
	endpoint := s.spreadsheetURL("/values/" + url.PathEscape(rng) + suffix)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

// do sends one request and returns the body of a 2xx response. Any other
// outcome is mapped onto the storage errors.
func (s *Datastore) do(ctx context.Context, method, endpoint, collection string, payload any) ([]byte, error) {
	var body any
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = encoded
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("error forming request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if s.tokens != nil {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return nil, handleTransportError(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, handleTransportError(err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, handleTransportError(err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		err := statusError(collection, res.StatusCode, data)
		s.logger.DebugWithContext(ctx, "sheets request failed",
			zap.String("method", method),
			zap.Int("status", res.StatusCode),
			zap.Error(err),
		)
		return nil, err
	}
	return data, nil
}

func handleTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", storage.ErrCancelled, err)
	}
	return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
}

// statusError maps an error response. The API reports an unknown sheet as a
// range that cannot be parsed.
func statusError(collection string, status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()

	switch {
	case status == http.StatusBadRequest && strings.Contains(msg, "Unable to parse range"):
		return storage.CollectionNotFoundError(collection)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: spreadsheet not found: %s", storage.ErrStoreUnavailable, msg)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d: %s", storage.ErrStoreUnavailable, status, msg)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, msg)
	}
}

// parseValues turns a values response into a Table. The API omits trailing
// empty cells, so data rows are padded to the header width.
func parseValues(body []byte) *storage.Table {
	table := &storage.Table{}
	for i, row := range gjson.GetBytes(body, "values").Array() {
		cells := make([]string, 0, len(table.Headers))
		for _, cell := range row.Array() {
			cells = append(cells, cell.String())
		}
		if i == 0 {
			table.Headers = cells
			continue
		}
		table.Rows = append(table.Rows, storage.PadRow(cells, len(table.Headers)))
	}
	return table
}
