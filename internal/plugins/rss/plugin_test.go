package rss

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

const rssFixture = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Release notes</title>
    <item>
      <guid>rel-2</guid>
      <title>v2.0 released</title>
      <link>http://example.com/v2</link>
      <description>&lt;p&gt;Now with &lt;b&gt;themes&lt;/b&gt;.&lt;/p&gt;</description>
      <author>ann</author>
      <category>releases</category>
      <pubDate>Mon, 02 Mar 2026 10:00:00 +0000</pubDate>
      <enclosure url="http://example.com/v2.tar.gz" length="1024" type="application/gzip"/>
    </item>
    <item>
      <title>v1.9 released</title>
      <link>http://example.com/v1.9</link>
      <description>Maintenance release.</description>
      <pubDate>Sun, 01 Mar 2026 10:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Status</title>
  <entry>
    <id>urn:status:7</id>
    <title>Elevated error rates</title>
    <link rel="alternate" href="http://status.example.com/7"/>
    <summary>Investigating.</summary>
    <author><name>ops</name></author>
    <category term="incident"/>
    <updated>2026-03-02T12:30:00Z</updated>
  </entry>
</feed>`

func TestParseFeedRSS(t *testing.T) {
	entries, err := parseFeed([]byte(rssFixture))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "rel-2", first.id)
	assert.Equal(t, "v2.0 released", first.title)
	assert.Equal(t, "ann", first.author)
	assert.Equal(t, "releases", first.category)
	assert.Equal(t, "http://example.com/v2.tar.gz", first.enclosure)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), first.published.UTC())

	// GUID-less entries fall back to the link as identity.
	assert.Equal(t, "http://example.com/v1.9", entries[1].id)
}

func TestParseFeedAtom(t *testing.T) {
	entries, err := parseFeed([]byte(atomFixture))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "urn:status:7", e.id)
	assert.Equal(t, "Elevated error rates", e.title)
	assert.Equal(t, "Investigating.", e.body)
	assert.Equal(t, "ops", e.author)
	assert.Equal(t, "incident", e.category)
	assert.Equal(t, "http://status.example.com/7", e.link)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC), e.published.UTC())
}

func TestParseFeedGarbage(t *testing.T) {
	_, err := parseFeed([]byte("not xml at all"))
	assert.Error(t, err)
}

func TestEntryToItem(t *testing.T) {
	e := entry{
		id:        "rel-2",
		title:     "v2.0 released",
		body:      "<p>Now with <b>themes</b>.</p>",
		link:      "http://example.com/v2",
		enclosure: "http://example.com/v2.tar.gz",
	}
	item := e.toItem()
	assert.Equal(t, "rel-2", item.ID)
	assert.NotEmpty(t, item.Hash)
	assert.Contains(t, item.Description, "**themes**")
	assert.Equal(t, "rss", item.Origin.AdapterType)
	require.Len(t, item.Attachments, 1)
	assert.Equal(t, "http://example.com/v2.tar.gz", item.Attachments[0].URL)
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func feedSource(url string) domain.Source {
	return domain.Source{
		ID:      "feed",
		Type:    "rss",
		Project: "inbox",
		Config:  map[string]string{"feedUrl": url},
	}
}

func TestPollAdvancesCursor(t *testing.T) {
	srv := feedServer(t, rssFixture)
	a := Plugin().New()

	res, err := a.Poll(context.Background(), feedSource(srv.URL), nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)

	var cur cursor
	require.NoError(t, json.Unmarshal(res.State, &cur))
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), cur.LastPublished.UTC())

	// Second poll with the advanced cursor sees nothing new.
	res2, err := a.Poll(context.Background(), feedSource(srv.URL), res.State, nil)
	require.NoError(t, err)
	assert.Empty(t, res2.Items)
}

func TestPollFiltersByCursor(t *testing.T) {
	srv := feedServer(t, rssFixture)
	a := Plugin().New()

	state, _ := json.Marshal(cursor{LastPublished: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	res, err := a.Poll(context.Background(), feedSource(srv.URL), state, nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "v2.0 released", res.Items[0].Title)
}

func TestPollUndatedEntryPassesCursor(t *testing.T) {
	feed := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Mixed</title>
    <item>
      <guid>undated</guid>
      <title>No usable date</title>
      <pubDate>not a date</pubDate>
    </item>
  </channel>
</rss>`
	srv := feedServer(t, feed)
	a := Plugin().New()

	cursorAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state, _ := json.Marshal(cursor{LastPublished: cursorAt})
	res, err := a.Poll(context.Background(), feedSource(srv.URL), state, nil)
	require.NoError(t, err)

	// An unparseable date counts as published at fetch time instead of
	// hiding the entry behind the cursor forever.
	require.Len(t, res.Items, 1)
	assert.Equal(t, "No usable date", res.Items[0].Title)

	// The cursor only advances on real publish times.
	var next cursor
	require.NoError(t, json.Unmarshal(res.State, &next))
	assert.Equal(t, cursorAt, next.LastPublished.UTC())
}

func TestPollMissingFeedURL(t *testing.T) {
	a := Plugin().New()
	_, err := a.Poll(context.Background(), domain.Source{ID: "feed"}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTestReportsSamples(t *testing.T) {
	srv := feedServer(t, rssFixture)
	a := Plugin().New()

	res, err := a.Test(context.Background(), feedSource(srv.URL), nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "2 entries")
	assert.Len(t, res.SampleItems, 2)
}

func TestTestUnreachableFeed(t *testing.T) {
	srv := feedServer(t, rssFixture)
	srv.Close()
	a := Plugin().New()

	res, err := a.Test(context.Background(), feedSource(srv.URL), nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Message)
}

func TestParseTimeFormats(t *testing.T) {
	assert.False(t, parseTime("Mon, 02 Mar 2026 10:00:00 +0000").IsZero())
	assert.False(t, parseTime("Mon, 02 Mar 2026 10:00:00 GMT").IsZero())
	assert.False(t, parseTime("2026-03-02T10:00:00Z").IsZero())
	assert.False(t, parseTime("Mon, 2 Mar 2026 10:00:00 +0000").IsZero())
	assert.True(t, parseTime("last tuesday").IsZero())
}
