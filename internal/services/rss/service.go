package rss

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
)

// Service implements FetchService: polls RSS/Atom feeds, extracts item
// content, converts it to markdown and stores previously unseen items as
// pending articles.
type Service struct {
	config         common.RSSConfig
	articleRetries int
	storage        interfaces.ArticleStorage
	client         *http.Client
	converter      *md.Converter
	logger         arbor.ILogger
}

// NewService creates an RSS fetch service. articleRetries seeds the
// per-article retry budget on new articles.
func NewService(config common.RSSConfig, articleRetries int, storage interfaces.ArticleStorage, logger arbor.ILogger) (*Service, error) {
	timeout, err := time.ParseDuration(config.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid request timeout '%s': %w", config.RequestTimeout, err)
	}

	return &Service{
		config:         config,
		articleRetries: articleRetries,
		storage:        storage,
		client:         &http.Client{Timeout: timeout},
		converter:      md.NewConverter("", true, nil),
		logger:         logger,
	}, nil
}

// FetchAll polls the given sources (all configured sources when empty) and
// stores previously unseen items, up to limit new articles across sources
func (s *Service) FetchAll(ctx context.Context, sourceURLs []string, limit int) (*models.FetchResult, error) {
	sources := sourceURLs
	if len(sources) == 0 {
		sources = s.config.SourceURLs
	}
	if len(sources) == 0 {
		return &models.FetchResult{}, nil
	}
	if limit <= 0 {
		limit = s.config.FetchLimit
	}

	result := &models.FetchResult{PerSource: make(map[string]int)}
	var errs []string

	for _, source := range sources {
		if result.NewItems >= limit {
			break
		}

		items, err := s.fetchFeed(ctx, source)
		if err != nil {
			s.logger.Warn().Err(err).Str("source", source).Msg("Feed fetch failed")
			errs = append(errs, fmt.Sprintf("%s: %v", source, err))
			continue
		}

		result.ItemsFetched += len(items)

		stored := 0
		for _, item := range items {
			if result.NewItems >= limit {
				break
			}
			saved, err := s.storeItem(ctx, source, item)
			if err != nil {
				s.logger.Warn().Err(err).Str("url", item.link).Msg("Failed to store feed item")
				continue
			}
			if saved {
				stored++
				result.NewItems++
			}
		}
		result.PerSource[source] = stored

		s.logger.Info().
			Str("source", source).
			Int("items", len(items)).
			Int("new", stored).
			Msg("Feed fetched")
	}

	// A run where every source failed is a job failure; partial failures are
	// only logged
	if len(errs) == len(sources) && len(sources) > 0 {
		return result, fmt.Errorf("all %d feed sources failed: %s", len(sources), strings.Join(errs, "; "))
	}
	return result, nil
}

// feedItem is the normalized shape of one RSS or Atom entry
type feedItem struct {
	title       string
	link        string
	contentHTML string
	publishedAt time.Time
	sourceName  string
}

type rssDocument struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Content     string `xml:"encoded"` // content:encoded
	PubDate     string `xml:"pubDate"`
}

type atomFeed struct {
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string     `xml:"title"`
	Links   []atomLink `xml:"link"`
	Content string     `xml:"content"`
	Summary string     `xml:"summary"`
	Updated string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// fetchFeed downloads and parses one feed URL, handling both RSS and Atom
func (s *Service) fetchFeed(ctx context.Context, url string) ([]feedItem, error) {
	body, err := s.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var rss rssDocument
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		items := make([]feedItem, 0, len(rss.Channel.Items))
		for _, item := range rss.Channel.Items {
			content := item.Content
			if content == "" {
				content = item.Description
			}
			items = append(items, feedItem{
				title:       strings.TrimSpace(item.Title),
				link:        strings.TrimSpace(item.Link),
				contentHTML: content,
				publishedAt: parseFeedTime(item.PubDate),
				sourceName:  strings.TrimSpace(rss.Channel.Title),
			})
		}
		return items, nil
	}

	var atom atomFeed
	if err := xml.Unmarshal(body, &atom); err == nil && len(atom.Entries) > 0 {
		items := make([]feedItem, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			content := entry.Content
			if content == "" {
				content = entry.Summary
			}
			link := ""
			for _, l := range entry.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			items = append(items, feedItem{
				title:       strings.TrimSpace(entry.Title),
				link:        strings.TrimSpace(link),
				contentHTML: content,
				publishedAt: parseFeedTime(entry.Updated),
				sourceName:  strings.TrimSpace(atom.Title),
			})
		}
		return items, nil
	}

	return nil, fmt.Errorf("response from %s is neither RSS nor Atom", url)
}

// storeItem converts one feed item to markdown and persists it if unseen.
// Returns true when a new article was stored.
func (s *Service) storeItem(ctx context.Context, source string, item feedItem) (bool, error) {
	if item.link == "" || item.title == "" {
		return false, nil
	}

	existing, err := s.storage.GetArticleBySourceURL(ctx, item.link)
	if err == nil && existing != nil {
		return false, nil
	}

	contentHTML := item.contentHTML
	if strings.TrimSpace(contentHTML) == "" {
		// Feed carried no body; pull the linked page instead
		contentHTML, err = s.fetchPageContent(ctx, item.link)
		if err != nil {
			return false, fmt.Errorf("failed to fetch article page: %w", err)
		}
	}

	markdown, err := s.converter.ConvertString(contentHTML)
	if err != nil {
		return false, fmt.Errorf("failed to convert content to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return false, nil
	}

	now := time.Now()
	article := &models.Article{
		ID:               common.NewArticleID(),
		SourceURL:        item.link,
		SourceName:       item.sourceName,
		Title:            item.title,
		Content:          markdown,
		PublishedAt:      item.publishedAt,
		FetchedAt:        now,
		ProcessingStatus: models.ProcessingStatusPending,
		MaxRetries:       s.articleRetries,
		UpdatedAt:        now,
	}

	if err := s.storage.SaveArticle(ctx, article); err != nil {
		return false, fmt.Errorf("failed to save article: %w", err)
	}

	s.logger.Debug().
		Str("article_id", article.ID).
		Str("url", article.SourceURL).
		Str("source", source).
		Msg("Article stored")
	return true, nil
}

// fetchPageContent downloads an article page and extracts its main content
// as HTML, stripping navigation and script noise
func (s *Service) fetchPageContent(ctx context.Context, url string) (string, error) {
	body, err := s.get(ctx, url)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("failed to parse article page: %w", err)
	}

	doc.Find("script, style, nav, header, footer, aside, form, iframe").Remove()

	for _, selector := range []string{"article", "main", "[role=main]", "#content", ".content"} {
		if selection := doc.Find(selector).First(); selection.Length() > 0 {
			if html, err := selection.Html(); err == nil && strings.TrimSpace(html) != "" {
				return html, nil
			}
		}
	}

	html, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("failed to extract page body: %w", err)
	}
	return html, nil
}

func (s *Service) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	limit := int64(s.config.MaxBodySize)
	if limit <= 0 {
		limit = 10 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// parseFeedTime tries the common feed timestamp layouts
func parseFeedTime(value string) time.Time {
	value = strings.TrimSpace(value)
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2006-01-02T15:04:05Z",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Now()
}
