package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFakeAPI(t *testing.T, uploadStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"api":"healthy","object_store_status":"healthy","db_status":"healthy"}`))
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file.Close()
		if uploadStatus != http.StatusOK {
			w.WriteHeader(uploadStatus)
			w.Write([]byte(`{"error":"schema_mismatch","detail":"missing required columns: CLASS"}`))
			return
		}
		w.Write([]byte(`{"message":"File ingested successfully","filename":"` + header.Filename +
			`","records":3,"archive_key":"raw/20240301_100000_sample.csv","database_records":3}`))
	})
	mux.HandleFunc("/data/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_records":6,"by_class":{"Y":4,"N":2}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.csv")
	if err := os.WriteFile(path, []byte("ID\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	srv := newFakeAPI(t, http.StatusOK)
	var out strings.Builder

	err := run(context.Background(), &client{base: srv.URL, http: srv.Client()}, writeCSV(t), &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"Uploaded sample.csv", "raw/20240301_100000_sample.csv", "Total records: 6", "Y: 4"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRun_UploadRejected(t *testing.T) {
	srv := newFakeAPI(t, http.StatusBadRequest)
	var out strings.Builder

	err := run(context.Background(), &client{base: srv.URL, http: srv.Client()}, writeCSV(t), &out)
	if err == nil || !strings.Contains(err.Error(), "schema_mismatch") {
		t.Fatalf("run() error = %v, want schema_mismatch", err)
	}
}

func TestRun_MissingFile(t *testing.T) {
	srv := newFakeAPI(t, http.StatusOK)
	var out strings.Builder

	if err := run(context.Background(), &client{base: srv.URL, http: srv.Client()}, filepath.Join(t.TempDir(), "nope.csv"), &out); err == nil {
		t.Fatal("run() succeeded for a missing file")
	}
}
