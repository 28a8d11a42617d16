package news

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"edgescout/internal/config"
)

// Sentiment summarises recent coverage of a market question. LLR is
// log-odds evidence for the YES outcome, already in natural-log units.
type Sentiment struct {
	AvgSentiment  float64
	HeadlineCount int
	Confidence    float64
	LLR           float64
	Headlines     []string
}

// Analyzer provides the news-sentiment signal. The engine treats a nil
// analyzer or a fetch error as "no evidence".
type Analyzer interface {
	Analyze(ctx context.Context, question string) (*Sentiment, error)
}

// Client pulls headlines from a NewsAPI-compatible endpoint and scores
// them with a small polarity lexicon.
type Client struct {
	http *resty.Client
}

func New(cfg config.NewsConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://newsapi.org/v2"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	http := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("X-Api-Key", cfg.APIKey).
		SetHeader("Accept", "application/json")
	return &Client{http: http}
}

type articlesResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"articles"`
}

func (c *Client) Analyze(ctx context.Context, question string) (*Sentiment, error) {
	query := keywordQuery(question)
	if query == "" {
		return &Sentiment{}, nil
	}
	var page articlesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("sortBy", "publishedAt").
		SetQueryParam("pageSize", "20").
		SetQueryParam("language", "en").
		SetResult(&page).
		Get("/everything")
	if err != nil {
		return nil, fmt.Errorf("news fetch: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("news fetch: status %d", resp.StatusCode())
	}
	result := &Sentiment{}
	var total float64
	for _, a := range page.Articles {
		if a.Title == "" {
			continue
		}
		result.Headlines = append(result.Headlines, a.Title)
		total += scoreText(a.Title + " " + a.Description)
	}
	result.HeadlineCount = len(result.Headlines)
	if result.HeadlineCount == 0 {
		return result, nil
	}
	result.AvgSentiment = total / float64(result.HeadlineCount)
	// Confidence saturates at 10 headlines.
	result.Confidence = float64(result.HeadlineCount) / 10
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	result.LLR = result.AvgSentiment * result.Confidence * 0.4
	return result, nil
}

// keywordQuery strips question boilerplate and keeps the distinctive terms.
func keywordQuery(question string) string {
	stop := map[string]bool{
		"will": true, "the": true, "be": true, "by": true, "in": true,
		"on": true, "at": true, "of": true, "a": true, "an": true,
		"to": true, "before": true, "after": true, "or": true, "and": true,
	}
	var keep []string
	for _, word := range strings.Fields(question) {
		cleaned := strings.Trim(strings.ToLower(word), "?.,!\"'()")
		if cleaned == "" || stop[cleaned] {
			continue
		}
		keep = append(keep, cleaned)
		if len(keep) == 6 {
			break
		}
	}
	return strings.Join(keep, " ")
}

var polarity = map[string]float64{
	"win": 1, "wins": 1, "winning": 1, "lead": 0.8, "leads": 0.8,
	"leading": 0.8, "surge": 1, "surges": 1, "rally": 0.8, "gains": 0.8,
	"approved": 1, "confirmed": 1, "success": 1, "record": 0.6,
	"ahead": 0.6, "likely": 0.6, "boost": 0.6, "strong": 0.6,
	"lose": -1, "loses": -1, "losing": -1, "behind": -0.6, "trails": -0.8,
	"trailing": -0.8, "drop": -0.8, "drops": -0.8, "crash": -1,
	"rejected": -1, "denied": -1, "fails": -1, "failed": -1,
	"unlikely": -0.6, "doubt": -0.6, "weak": -0.6, "scandal": -0.8,
	"delay": -0.6, "delayed": -0.6,
}

func scoreText(text string) float64 {
	var score float64
	var hits int
	for _, word := range strings.Fields(strings.ToLower(text)) {
		cleaned := strings.Trim(word, "?.,!\"'():;")
		if v, ok := polarity[cleaned]; ok {
			score += v
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	avg := score / float64(hits)
	if avg > 1 {
		avg = 1
	}
	if avg < -1 {
		avg = -1
	}
	return avg
}
