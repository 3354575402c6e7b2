package readwise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
	"github.com/custodia-labs/rmsync/internal/logger"
)

// TargetName is the ledger name of the Readwise target.
const TargetName = "readwise"

const (
	// DefaultBaseURL is the Readwise v2 API root.
	DefaultBaseURL = "https://readwise.io/api/v2"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxTextLen is the longest highlight text sent; longer text is cut
	// and marked with "...".
	MaxTextLen = 2000

	// MinPageTextLen rejects pages with barely any recognised text.
	MinPageTextLen = 10

	// LowConfidence adds an OCR warning note below this confidence.
	LowConfidence = 0.7

	// TasksTitle is the book collecting todos from all notebooks.
	TasksTitle = "reMarkable Tasks"

	tokenType        = "Token"
	author           = "reMarkable"
	sourceType       = "remarkable"
	categoryBooks    = "books"
	categoryArticles = "articles"
	locationPage     = "page"
	listPageSize     = 1000
	maxErrorBody     = 1024
)

// Ensure Client implements the interface.
var _ driven.TargetClient = (*Client)(nil)

// Client is the Readwise TargetClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
	mappings   driven.MappingStore
	limiter    *RateLimiter
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	transport http.RoundTripper
	perMinute int
}

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(o *clientOptions) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithTransport sets the transport under the token header.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithRequestsPerMinute overrides the request rate.
func WithRequestsPerMinute(n int) Option {
	return func(o *clientOptions) { o.perMinute = n }
}

// NewClient creates a Readwise client. The mapping store remembers the
// book each notebook's highlights landed in.
func NewClient(token string, mappings driven.MappingStore, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("readwise: %w", domain.ErrAuthRequired)
	}

	o := clientOptions{baseURL: DefaultBaseURL, perMinute: RequestsPerMinute}
	for _, opt := range opts {
		opt(&o)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: tokenType})
	return &Client{
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: &oauth2.Transport{Source: ts, Base: o.transport},
		},
		baseURL:    o.baseURL,
		mappings:   mappings,
		limiter:    NewRateLimiter(o.perMinute),
	}, nil
}

// Name returns "readwise".
func (c *Client) Name() string {
	return TargetName
}

// Supports accepts every item type.
func (c *Client) Supports(itemType domain.ItemType) bool {
	return itemType.IsValid()
}

// highlight is one entry of a create request.
type highlight struct {
	Text          string `json:"text"`
	Title         string `json:"title,omitempty"`
	Author        string `json:"author,omitempty"`
	Category      string `json:"category,omitempty"`
	SourceType    string `json:"source_type,omitempty"`
	Note          string `json:"note,omitempty"`
	Location      int    `json:"location"`
	LocationType  string `json:"location_type,omitempty"`
	HighlightURL  string `json:"highlight_url,omitempty"`
	HighlightedAt string `json:"highlighted_at,omitempty"`
}

// highlightUpdate is the body of a PATCH; Readwise edits these in place.
type highlightUpdate struct {
	Text     string `json:"text"`
	Note     string `json:"note"`
	Location int    `json:"location"`
}

type createRequest struct {
	Highlights []highlight `json:"highlights"`
}

// createdBook is one element of the create response.
type createdBook struct {
	ID                 int64   `json:"id"`
	Title              string  `json:"title"`
	ModifiedHighlights []int64 `json:"modified_highlights"`
}

type listResponse struct {
	Count   int               `json:"count"`
	Next    string            `json:"next"`
	Results []listedHighlight `json:"results"`
}

type listedHighlight struct {
	ID           int64  `json:"id"`
	Location     int    `json:"location"`
	LocationType string `json:"location_type"`
	BookID       int64  `json:"book_id"`
	HighlightURL string `json:"highlight_url"`
	URL          string `json:"url"`
}

// pageNumber reports the notebook page this result was created from.
// Highlights and todos share the book and location type with pages, so
// only the page URL tells them apart.
func (h listedHighlight) pageNumber(ownerID string) (int, bool) {
	link := h.HighlightURL
	if link == "" {
		link = h.URL
	}
	rest, ok := strings.CutPrefix(link, pageURLPrefix(ownerID))
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

func pageURLPrefix(ownerID string) string {
	return "remarkable://notebook/" + ownerID + "/page/"
}

// Upsert creates a highlight, or edits it when externalRef is set. Editing
// a highlight deleted in Readwise falls back to create.
func (c *Client) Upsert(ctx context.Context, unit domain.SyncableUnit, externalRef string) (string, error) {
	h, err := buildHighlight(unit)
	if err != nil {
		return "", err
	}

	if externalRef != "" {
		err := c.updateHighlight(ctx, externalRef, highlightUpdate{Text: h.Text, Note: h.Note, Location: h.Location})
		if err == nil {
			return externalRef, nil
		}
		if !IsNotFound(err) {
			return "", err
		}
		logger.Debug("readwise: highlight %s is gone, recreating", externalRef)
	}

	book, id, err := c.createHighlight(ctx, h)
	if err != nil {
		return "", err
	}
	if unit.ItemType != domain.ItemTypeTodo && c.mappings != nil && book != 0 {
		if err := c.mappings.SaveMapping(ctx, TargetName, unit.OwnerID, strconv.FormatInt(book, 10)); err != nil {
			return "", fmt.Errorf("save book mapping: %w", err)
		}
	}
	return strconv.FormatInt(id, 10), nil
}

// ListKnownItems returns the page numbers already in the notebook's book.
// Highlights in the same book are not counted. A notebook that never
// reached Readwise has no known items.
func (c *Client) ListKnownItems(ctx context.Context, ownerID string) (map[int]struct{}, error) {
	known := make(map[int]struct{})
	if c.mappings == nil {
		return known, nil
	}
	bookID, err := c.mappings.GetMapping(ctx, TargetName, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return known, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book mapping: %w", err)
	}

	q := url.Values{}
	q.Set("book_id", bookID)
	q.Set("page_size", strconv.Itoa(listPageSize))
	next := c.baseURL + "/highlights/?" + q.Encode()

	for next != "" {
		var page listResponse
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, h := range page.Results {
			if n, ok := h.pageNumber(ownerID); ok {
				known[n] = struct{}{}
			}
		}
		next = page.Next
	}
	return known, nil
}

func (c *Client) createHighlight(ctx context.Context, h highlight) (bookID, highlightID int64, err error) {
	var books []createdBook
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/highlights/", createRequest{Highlights: []highlight{h}}, &books); err != nil {
		return 0, 0, err
	}
	for _, b := range books {
		if len(b.ModifiedHighlights) > 0 {
			return b.ID, b.ModifiedHighlights[0], nil
		}
	}
	return 0, 0, ErrEmptyResponse
}

func (c *Client) updateHighlight(ctx context.Context, id string, u highlightUpdate) error {
	return c.do(ctx, http.MethodPatch, c.baseURL+"/highlights/"+url.PathEscape(id)+"/", u, nil)
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, rawURL string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("readwise: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := c.limiter.CheckRateLimit(resp); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg)), URL: req.URL.Path}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("readwise: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// buildHighlight shapes a unit into a Readwise highlight.
func buildHighlight(unit domain.SyncableUnit) (highlight, error) {
	text := strings.TrimSpace(unit.Text)
	title := unit.OwnerTitle
	if title == "" {
		title = unit.OwnerID
	}

	h := highlight{
		Text:         truncate(text, MaxTextLen),
		Title:        title,
		Author:       author,
		Category:     categoryBooks,
		SourceType:   sourceType,
		Location:     unit.Sequence,
		LocationType: locationPage,
	}
	if !unit.UpdatedAt.IsZero() {
		h.HighlightedAt = unit.UpdatedAt.UTC().Format(time.RFC3339)
	}

	switch unit.ItemType {
	case domain.ItemTypePage:
		if n := utf8.RuneCountInString(text); n < MinPageTextLen {
			return highlight{}, fmt.Errorf("%w: %w: page %d has %d characters",
				domain.ErrInvalidInput, ErrTextTooShort, unit.Sequence, n)
		}
		h.HighlightURL = pageURLPrefix(unit.OwnerID) + strconv.Itoa(unit.Sequence)
		h.Note = confidenceNote(unit.Confidence)
	case domain.ItemTypeHighlight:
		h.HighlightURL = "remarkable://highlight/" + unit.ItemID
		h.Note = confidenceNote(unit.Confidence)
	case domain.ItemTypeTodo:
		h.Title = TasksTitle
		h.Category = categoryArticles
		h.HighlightURL = "remarkable://todo/" + unit.ItemID
		h.Note = fmt.Sprintf("Task from %s, page %d", title, unit.Sequence)
		if unit.Completed {
			h.Note += " (done)"
		}
	default:
		return highlight{}, fmt.Errorf("readwise: %w: %s", domain.ErrUnsupportedType, unit.ItemType)
	}

	if h.Text == "" {
		return highlight{}, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}
	return h, nil
}

func confidenceNote(c float64) string {
	if c <= 0 || c >= LowConfidence {
		return ""
	}
	return fmt.Sprintf("OCR confidence: %.1f%% - may contain errors", c*100)
}

// truncate cuts s to max runes, ending in "..." when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
