package sheets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	fakeSpreadsheetID = "sheet-id"
	fakeToken         = "test-token"
)

// fakeSpreadsheet serves the subset of the values API the Datastore uses.
type fakeSpreadsheet struct {
	mu     sync.Mutex
	sheets map[string][][]string // GUARDED_BY(mu)

	requests atomic.Int32
	// failNext answers that many requests with 503 before serving again.
	failNext atomic.Int32
}

func newFakeSpreadsheet(t *testing.T) (*fakeSpreadsheet, *httptest.Server) {
	t.Helper()
	fake := &fakeSpreadsheet{sheets: make(map[string][][]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, srv
}

func newTestDatastore(t *testing.T, srv *httptest.Server, opts ...DatastoreOption) *Datastore {
	t.Helper()
	opts = append([]DatastoreOption{
		WithBaseURL(srv.URL + "/v4/spreadsheets"),
		WithTokenSource(StaticToken(fakeToken)),
		WithRetryMax(0),
	}, opts...)
	ds, err := New(NewConfig(fakeSpreadsheetID, opts...))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ds.Close)
	return ds
}

func (f *fakeSpreadsheet) seed(name string, rows ...[]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sheets[name] = rows
}

func (f *fakeSpreadsheet) rows(name string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sheets[name]
}

func (f *fakeSpreadsheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)

	if f.failNext.Load() > 0 {
		f.failNext.Add(-1)
		writeError(w, http.StatusServiceUnavailable, "The service is currently unavailable.")
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+fakeToken {
		writeError(w, http.StatusUnauthorized, "Request is missing required authentication credential.")
		return
	}

	root := "/v4/spreadsheets/" + fakeSpreadsheetID
	switch path := r.URL.Path; {
	case path == root && r.Method == http.MethodGet:
		writeJSON(w, map[string]string{"spreadsheetId": fakeSpreadsheetID})
	case path == root+":batchUpdate" && r.Method == http.MethodPost:
		f.batchUpdate(w, r)
	case strings.HasPrefix(path, root+"/values/"):
		f.values(w, r, strings.TrimPrefix(path, root+"/values/"))
	default:
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
	}
}

func (f *fakeSpreadsheet) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requests []struct {
			AddSheet struct {
				Properties struct {
					Title string `json:"title"`
				} `json:"properties"`
			} `json:"addSheet"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range body.Requests {
		title := req.AddSheet.Properties.Title
		if _, ok := f.sheets[title]; ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("A sheet with the name %q already exists.", title))
			return
		}
		f.sheets[title] = nil
	}
	writeJSON(w, map[string]string{"spreadsheetId": fakeSpreadsheetID})
}

func (f *fakeSpreadsheet) values(w http.ResponseWriter, r *http.Request, rng string) {
	op := ""
	for _, suffix := range []string{":append", ":clear"} {
		if strings.HasSuffix(rng, suffix) {
			op = suffix
			rng = strings.TrimSuffix(rng, suffix)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	name, line, ok := parseRange(rng)
	rows, exists := f.sheets[name]
	if !ok || !exists {
		writeError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return
	}

	if r.Method != http.MethodGet && op != ":clear" && r.URL.Query().Get("valueInputOption") != "RAW" {
		writeError(w, http.StatusBadRequest, "valueInputOption is required")
		return
	}

	var body valueRange
	if r.Method != http.MethodGet && op != ":clear" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	switch {
	case r.Method == http.MethodGet && op == "":
		resp := map[string]any{"range": rng, "majorDimension": "ROWS"}
		if len(rows) > 0 {
			resp["values"] = trimRows(rows)
		}
		writeJSON(w, resp)
	case r.Method == http.MethodPost && op == ":clear":
		f.sheets[name] = nil
		writeJSON(w, map[string]string{"clearedRange": rng})
	case r.Method == http.MethodPost && op == ":append":
		f.sheets[name] = append(rows, body.Values...)
		writeJSON(w, map[string]string{"spreadsheetId": fakeSpreadsheetID})
	case r.Method == http.MethodPut && op == "" && line == 0:
		f.sheets[name] = body.Values
		writeJSON(w, map[string]int{"updatedRows": len(body.Values)})
	case r.Method == http.MethodPut && op == "":
		for len(rows) < line {
			rows = append(rows, nil)
		}
		rows[line-1] = body.Values[0]
		f.sheets[name] = rows
		writeJSON(w, map[string]int{"updatedRows": 1})
	default:
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
	}
}

// parseRange understands the two shapes the Datastore sends: a quoted sheet
// name alone, or followed by a single-line range.
func parseRange(rng string) (string, int, bool) {
	end := strings.LastIndex(rng, "'")
	if !strings.HasPrefix(rng, "'") || end == 0 {
		return "", 0, false
	}
	name := strings.ReplaceAll(rng[1:end], "''", "'")

	rest := rng[end+1:]
	if rest == "" {
		return name, 0, true
	}
	var line int
	if _, err := fmt.Sscanf(rest, "!A%d:", &line); err != nil || line < 2 {
		return "", 0, false
	}
	return name, line, true
}

// trimRows drops trailing empty cells and rows the way the API does.
func trimRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		end := len(row)
		for end > 0 && row[end-1] == "" {
			end--
		}
		out = append(out, row[:end])
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": msg},
	})
}
