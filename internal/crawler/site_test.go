package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kmercer/salewatch/internal/config"
)

const indexPageOne = `<html><body><table id="sales"><tbody>
<tr>
  <td class="addr">12 Oak St, Newark, NJ</td>
  <td class="status">Scheduled</td>
  <td><a class="case" href="/detail/1001">view</a></td>
</tr>
<tr>
  <td class="addr">45 Maple Ave, Elizabeth, NJ</td>
  <td class="status">Sold</td>
  <td><a class="case" href="/detail/1002">view</a></td>
</tr>
</tbody></table></body></html>`

const indexPageTwo = `<html><body><table id="sales"><tbody>
<tr>
  <td class="addr">9 Pine Rd, Newark, NJ</td>
  <td class="status">Scheduled</td>
  <td><a class="case" href="/detail/1003">view</a></td>
</tr>
</tbody></table></body></html>`

const indexPageEmpty = `<html><body><table id="sales"><tbody></tbody></table></body></html>`

const detailPage = `<html><body><div class="sale">
<span class="attorney">Smith &amp; Jones LLC</span>
<span class="judgment">$200,000.00</span>
</div></body></html>`

func testSourceConfig(baseURL string) *config.SourceConfig {
	return &config.SourceConfig{
		ID:        "essex-nj",
		Name:      "Essex County",
		IndexURL:  baseURL + "/sales",
		PageParam: "page",
		PageStart: 1,
		MaxPages:  5,
		RowSel:    "table#sales tbody tr",
		NativeID:  config.SelectorConfig{Selector: "a.case", Attr: "href"},
		Fields: map[string]string{
			"Address": "td.addr",
			"Status":  "td.status",
		},
		Detail: &config.DetailConfig{
			LinkSel: "a.case",
			Fields: map[string]string{
				"Attorney": "span.attorney",
				"Judgment": "span.judgment",
			},
		},
	}
}

func testCrawlConfig() config.CrawlConfig {
	return config.CrawlConfig{MaxRetries: 1, UserAgent: "salewatch-test"}
}

func TestFetchIndexPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, indexPageOne)
		case "2":
			fmt.Fprint(w, indexPageTwo)
		default:
			fmt.Fprint(w, indexPageEmpty)
		}
	}))
	defer srv.Close()

	a, err := NewSiteAdapter(testSourceConfig(srv.URL), testCrawlConfig())
	if err != nil {
		t.Fatalf("NewSiteAdapter: %v", err)
	}

	records, err := a.FetchIndex(context.Background())
	if err != nil {
		t.Fatalf("FetchIndex: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 across two pages", len(records))
	}

	first := records[0]
	if first.Fields["Address"] != "12 Oak St, Newark, NJ" {
		t.Errorf("Address = %q", first.Fields["Address"])
	}
	if first.Fields["Status"] != "Scheduled" {
		t.Errorf("Status = %q", first.Fields["Status"])
	}
	if first.NativeID != "/detail/1001" {
		t.Errorf("NativeID = %q, want the href value", first.NativeID)
	}
	if first.DetailURL != srv.URL+"/detail/1001" {
		t.Errorf("DetailURL = %q, want absolute", first.DetailURL)
	}
}

func TestFetchIndexFailsOnUnreachablePage(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			hits++
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, indexPageOne)
	}))
	defer srv.Close()

	a, err := NewSiteAdapter(testSourceConfig(srv.URL), testCrawlConfig())
	if err != nil {
		t.Fatalf("NewSiteAdapter: %v", err)
	}

	// A page that stays broken must fail the whole fetch, not yield a
	// partial index that looks complete.
	if _, err := a.FetchIndex(context.Background()); err == nil {
		t.Fatal("FetchIndex should fail when a page is unreachable")
	}
	if hits == 0 {
		t.Fatal("failing page was never requested")
	}
}

func TestFetchDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/detail/1001" {
			fmt.Fprint(w, detailPage)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a, err := NewSiteAdapter(testSourceConfig(srv.URL), testCrawlConfig())
	if err != nil {
		t.Fatalf("NewSiteAdapter: %v", err)
	}
	if !a.HasDetail() {
		t.Fatal("HasDetail should be true with a detail config")
	}

	rec := &RawRecord{SourceID: "essex-nj", NativeID: "1001", DetailURL: srv.URL + "/detail/1001"}
	fields, err := a.FetchDetail(context.Background(), rec)
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	if fields["Attorney"] != "Smith & Jones LLC" {
		t.Errorf("Attorney = %q", fields["Attorney"])
	}
	if fields["Judgment"] != "$200,000.00" {
		t.Errorf("Judgment = %q", fields["Judgment"])
	}
}

func TestFetchDetailWithoutURL(t *testing.T) {
	a, err := NewSiteAdapter(testSourceConfig("http://example.com"), testCrawlConfig())
	if err != nil {
		t.Fatalf("NewSiteAdapter: %v", err)
	}
	if _, err := a.FetchDetail(context.Background(), &RawRecord{NativeID: "1001"}); err == nil {
		t.Fatal("FetchDetail should fail without a detail url")
	}
}
