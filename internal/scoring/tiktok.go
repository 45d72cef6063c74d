package scoring

// TikTok source and metric names as written by the ingestion workers.
const (
	SourceTikTokCC     = "tt_cc"
	SourceTikTokSearch = "tt_search"

	MetricHashtagScore  = "hashtag_score"
	MetricMomentum      = "momentum"
	MetricHits24h       = "hits_24h"
	MetricUniqueAuthors = "unique_authors_24h"
	MetricViewVelMedian = "view_vel_median"
	MetricEngRatio      = "eng_ratio_median"
)

// TikTokComponents exposes the sub-scores of the platform fold for
// explainability.
type TikTokComponents struct {
	CCTagZ    float64 `json:"tt_cc_tag_z"`
	CCMomZ    float64 `json:"tt_cc_mom_z"`
	HitsZ     float64 `json:"tt_hits_z"`
	AuthorsZ  float64 `json:"tt_auth_z"`
	ViewVelZ  float64 `json:"tt_vvel_z"`
	EngZ      float64 `json:"tt_eng_z"`
	SpamPen   float64 `json:"tt_spam_pen"`
	Raw       float64 `json:"tiktok_raw"`
	FoldValue float64 `json:"tiktok_z"`
}

// TikTokFold blends hashtag-rank momentum (creative center) and search-hit
// velocity/author/engagement series into one bounded z-like adjustment.
// Spam-looking bursts, where hits far outrun unique authors, are penalized:
// max(0, hits - 2*authors) capped at 5 and scaled by 0.25. The result is
// clamped to [-3, 3] and added, weighted, onto an existing heat value by the
// enrichment pass.
func TikTokFold(cc, search map[string][]float64) TikTokComponents {
	c := TikTokComponents{
		CCTagZ:   ShortZScore(cc[MetricHashtagScore]),
		CCMomZ:   ShortZScore(cc[MetricMomentum]),
		HitsZ:    ShortZScore(search[MetricHits24h]),
		AuthorsZ: ShortZScore(search[MetricUniqueAuthors]),
		ViewVelZ: ShortZScore(search[MetricViewVelMedian]),
		EngZ:     ShortZScore(search[MetricEngRatio]),
	}

	latestHits := lastValue(search[MetricHits24h])
	latestAuthors := lastValue(search[MetricUniqueAuthors])
	spam := latestHits - 2.0*latestAuthors
	if spam < 0 {
		spam = 0
	}
	if spam > 5 {
		spam = 5
	}
	c.SpamPen = spam

	c.Raw = 0.30*c.CCTagZ +
		0.15*c.CCMomZ +
		0.15*c.HitsZ +
		0.20*c.AuthorsZ +
		0.15*c.ViewVelZ +
		0.10*c.EngZ -
		0.25*(spam/5.0)

	c.FoldValue = Clamp(c.Raw, -3.0, 3.0)
	return c
}

func lastValue(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	return values[len(values)-1]
}
