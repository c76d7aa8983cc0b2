package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/locate"
	"github.com/star/orbsub/internal/met"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestPlan(t *testing.T) {
	m := locate.Missing{
		Attitude: []met.DayToken{"110403"},
		Spectra: map[detector.Mode]map[met.DayToken][]detector.ID{
			detector.CTIME: {
				"110403": {"n1"},
				"110402": {"n0", "b1"},
			},
		},
	}
	items := Plan(m)
	want := []string{
		"110402/glg_ctime_b1_110402_vNN.pha",
		"110402/glg_ctime_n0_110402_vNN.pha",
		"110403/glg_poshist_all_110403_vNN.fit",
		"110403/glg_ctime_n1_110403_vNN.pha",
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, it := range items {
		if it.String() != want[i] {
			t.Errorf("item %d = %s, want %s", i, it, want[i])
		}
	}
}

func TestPick(t *testing.T) {
	names := []string{"glg_ctime_n0_110402_v00.pha", "glg_ctime_n0_110402_v01.pha", "glg_ctime_n1_110402_v03.pha", "glg_cspec_n0_110402_v05.pha"}
	got := pick(names, SpectrumItem("110402", "n0", detector.CTIME))
	if got != "glg_ctime_n0_110402_v01.pha" {
		t.Errorf("pick = %q", got)
	}
	if got := pick(names, AttitudeItem("110402")); got != "" {
		t.Errorf("pick attitude = %q, want none", got)
	}
}

func archive(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2011/04/02/current/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2011/04/02/current/":
			io.WriteString(w, `<html><a href="../">up</a>
<a href="glg_poshist_all_110402_v00.fit">x</a>
<a href="glg_ctime_n0_110402_v00.pha">x</a>
<a href="glg_ctime_n0_110402_v01.pha">x</a></html>`)
		case "/2011/04/02/current/glg_ctime_n0_110402_v01.pha":
			io.WriteString(w, "ctime")
		case "/2011/04/02/current/glg_poshist_all_110402_v00.fit":
			io.WriteString(w, "poshist")
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	srv := archive(t)
	dir := t.TempDir()
	f := NewFetcher(srv.URL+"/", testLogger)

	items := []Item{
		AttitudeItem("110402"),
		SpectrumItem("110402", "n0", detector.CTIME),
		SpectrumItem("110402", "n5", detector.CTIME),
		AttitudeItem("110403"),
	}
	rep, err := f.Download(context.Background(), items, dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(rep.Downloaded) != 2 {
		t.Errorf("downloaded %v, want 2 files", rep.Downloaded)
	}
	if len(rep.Failed) != 2 {
		t.Errorf("failed %v, want 2 items", rep.Failed)
	}
	data, err := os.ReadFile(filepath.Join(dir, "110402", "glg_ctime_n0_110402_v01.pha"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ctime" {
		t.Errorf("file content = %q", data)
	}
	// Leftover temporary files would be picked up by the locator.
	entries, _ := os.ReadDir(filepath.Join(dir, "110402"))
	if len(entries) != 2 {
		t.Errorf("day directory has %d entries, want 2", len(entries))
	}
}

func TestDownloadCancelled(t *testing.T) {
	srv := archive(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher(srv.URL, testLogger).Download(ctx, []Item{AttitudeItem("110402")}, t.TempDir())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rep, err := NewFetcher(srv.URL, testLogger).Download(context.Background(), []Item{AttitudeItem("110402")}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Failed) != 1 {
		t.Errorf("failed = %v, want 1 item", rep.Failed)
	}
}
