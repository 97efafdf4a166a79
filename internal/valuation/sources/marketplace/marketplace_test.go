package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/sources"
	"pawnval/pkg/platform/httpclient"
)

const soldPage = `<!DOCTYPE html>
<html><body>
<ul class="srp-results">
  <li class="s-item">
    <div class="s-item__title">Shop on eBay</div>
    <span class="s-item__price">$20.00</span>
  </li>
  <li class="s-item s-item__pl-on-bottom">
    <a class="s-item__link" href="https://www.example.com/itm/apple-iphone/123456789?hash=x">
      <div class="s-item__title"><span role="heading">Apple iPhone 14 Pro 128GB Pre-Owned</span></div>
    </a>
    <div class="s-item__caption"><span class="POSITIVE">Sold  Oct 12, 2026</span></div>
    <span class="s-item__price">$1,450.00</span>
  </li>
  <li class="s-item">
    <a class="s-item__link" href="https://www.example.com/itm/987654321"></a>
    <div class="s-item__title">iPhone 14 Pro Brand New Sealed</div>
    <div class="s-item__title--tagblock">Sold 3 days ago</div>
    <span class="s-item__price">£470.50 to £520.00</span>
  </li>
  <li class="s-item">
    <div class="s-item__title">iPhone 14 Pro case</div>
    <span class="s-item__price">$3.99</span>
  </li>
  <li class="s-item">
    <div class="s-item__title">iPhone 14 Pro for parts</div>
    <div class="s-item__caption">Sold Yesterday</div>
    <span class="s-item__price">$120</span>
  </li>
</ul>
</body></html>`

type MarketplaceSuite struct {
	suite.Suite
	now     time.Time
	status  int
	body    string
	header  http.Header
	lastURL string
	srv     *httptest.Server
}

func TestMarketplaceSuite(t *testing.T) {
	suite.Run(t, new(MarketplaceSuite))
}

func (s *MarketplaceSuite) SetupTest() {
	s.now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s.status = http.StatusOK
	s.body = soldPage
	s.header = http.Header{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lastURL = r.URL.String()
		for k, vs := range s.header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.body))
	}))
}

func (s *MarketplaceSuite) TearDownTest() {
	s.srv.Close()
}

func (s *MarketplaceSuite) source(opts ...Option) *Source {
	client := httpclient.New(httpclient.WithHTTPClient(s.srv.Client()), httpclient.WithMaxRetries(0))
	src, err := New(s.srv.URL+"/sch/i.html", append([]Option{
		WithClient(client),
		WithClock(func() time.Time { return s.now }),
	}, opts...)...)
	s.Require().NoError(err)
	return src
}

func (s *MarketplaceSuite) TestParsesSoldListings() {
	res, err := s.source().Fetch(context.Background(), "iphone 14 pro")
	s.Require().NoError(err)
	s.Require().NoError(res.Validate())
	s.Equal(models.KindObservationSet, res.Kind)
	s.Require().Len(res.Observations, 3, "placeholder and cheap accessory are dropped")

	first := res.Observations[0]
	s.Equal("123456789", first.ID)
	s.Equal("Apple iPhone 14 Pro 128GB Pre-Owned", first.Title)
	s.Equal(1450.0, first.Price)
	s.Equal(models.ConditionUsed, first.Condition)
	s.Equal(time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), first.SoldAt)
	s.Equal(Name, first.Source)

	second := res.Observations[1]
	s.Equal(470.5, second.Price, "ranges use the lower bound")
	s.Equal(models.ConditionNew, second.Condition)
	s.Equal(s.now.AddDate(0, 0, -3), second.SoldAt)

	third := res.Observations[2]
	s.Equal(models.ConditionUsed, third.Condition)
	s.Equal(s.now.AddDate(0, 0, -1), third.SoldAt)
}

func (s *MarketplaceSuite) TestSearchParameters() {
	_, err := s.source(WithMaxResults(10)).Fetch(context.Background(), "iphone 14 pro")
	s.Require().NoError(err)
	s.Contains(s.lastURL, "_nkw=iphone+14+pro")
	s.Contains(s.lastURL, "LH_Sold=1")
	s.Contains(s.lastURL, "LH_Complete=1")
	s.Contains(s.lastURL, "_sop=13")
	s.Contains(s.lastURL, "_ipg=10")
}

func (s *MarketplaceSuite) TestMaxResults() {
	res, err := s.source(WithMaxResults(1)).Fetch(context.Background(), "iphone 14 pro")
	s.Require().NoError(err)
	s.Len(res.Observations, 1)
}

func (s *MarketplaceSuite) TestNoCardsIsEmpty() {
	s.body = `<html><body><p>No exact matches found</p></body></html>`
	_, err := s.source().Fetch(context.Background(), "zzzz")
	s.Equal(sources.CategoryEmptyResult, sources.CategoryOf(err))
}

func (s *MarketplaceSuite) TestBlockedStatusesAreRateLimited() {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusForbidden} {
		s.status = status
		s.header = http.Header{"Retry-After": []string{"120"}}
		_, err := s.source().Fetch(context.Background(), "iphone")
		s.Equal(sources.CategoryRateLimited, sources.CategoryOf(err), "status %d", status)
		s.Equal(2*time.Minute, sources.RetryAfterOf(err))
	}
}

func (s *MarketplaceSuite) TestServerErrorIsTransient() {
	s.status = http.StatusInternalServerError
	_, err := s.source().Fetch(context.Background(), "iphone")
	s.Equal(sources.CategoryTransient, sources.CategoryOf(err))
}

func (s *MarketplaceSuite) TestPersistentGatewayTimeout() {
	s.status = http.StatusGatewayTimeout
	_, err := s.source().Fetch(context.Background(), "iphone")
	s.Equal(sources.CategoryTimeout, sources.CategoryOf(err))
}

func TestParsePrice(t *testing.T) {
	tests := map[string]float64{
		"$1,299.99":        1299.99,
		"€45":              45,
		"£10.00 to £20.00": 10,
		"US $ 300.50":      300.5,
		"Approximately 12": 12,
	}
	for in, want := range tests {
		got, ok := parsePrice(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parsePrice("Free")
	assert.False(t, ok)
}

func TestParseSoldDate(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now, parseSoldDate("Sold Today", now))
	assert.Equal(t, now.AddDate(0, 0, -14), parseSoldDate("2 weeks ago", now))
	assert.Equal(t, now.AddDate(0, -1, 0), parseSoldDate("Sold 1 month ago", now))
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), parseSoldDate("Sold Sep 1, 2026", now))
	assert.True(t, parseSoldDate("Free shipping", now).IsZero())
	assert.True(t, parseSoldDate("", now).IsZero())
}

func TestInferCondition(t *testing.T) {
	assert.Equal(t, models.ConditionNew, inferCondition("Brand New Nintendo Switch"))
	assert.Equal(t, models.ConditionUsed, inferCondition("Switch like new"))
	assert.Equal(t, models.ConditionUsed, inferCondition("Refurbished iPad"))
	assert.Equal(t, models.ConditionUnknown, inferCondition("Newest model tablet"))
	assert.Equal(t, models.ConditionUnknown, inferCondition("GAMING LAPTOP"))
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
