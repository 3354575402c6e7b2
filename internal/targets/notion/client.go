package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jomei/notionapi"

	"github.com/custodia-labs/rmsync/internal/core/domain"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
	"github.com/custodia-labs/rmsync/internal/logger"
)

// TargetName is the ledger name of the Notion target.
const TargetName = "notion"

// Database property names.
const (
	propName     = "Name"
	propUUID     = "UUID"
	propDone     = "Done"
	propNotebook = "Notebook"
	propPage     = "Page"
	propSource   = "Source"
)

// DefaultTimeout is the HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// rateLimitBackoff pauses requests after Notion answers 429.
const rateLimitBackoff = 30 * time.Second

// Ensure Client implements the interface.
var _ driven.TargetClient = (*Client)(nil)

// Config holds the Notion destinations.
type Config struct {
	Token          string
	DatabaseID     string
	TodoDatabaseID string
}

// Client is the Notion TargetClient.
type Client struct {
	api            *notionapi.Client
	databaseID     string
	todoDatabaseID string
	mappings       driven.MappingStore
	ledger         driven.SyncLedgerStore
	limiter        *RateLimiter
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	rps        float64
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithRequestsPerSecond overrides the request rate.
func WithRequestsPerSecond(rps float64) Option {
	return func(o *clientOptions) { o.rps = rps }
}

// NewClient creates a Notion client. The mapping store caches notebook
// pages; the ledger is read to link todos to their page block.
func NewClient(cfg Config, mappings driven.MappingStore, ledger driven.SyncLedgerStore, opts ...Option) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("notion: %w", domain.ErrAuthRequired)
	}
	if cfg.DatabaseID == "" {
		return nil, ErrDatabaseNotConfigured
	}

	o := clientOptions{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		rps:        DefaultRequestsPerSecond,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		api:            notionapi.NewClient(notionapi.Token(cfg.Token), notionapi.WithHTTPClient(o.httpClient)),
		databaseID:     cfg.DatabaseID,
		todoDatabaseID: cfg.TodoDatabaseID,
		mappings:       mappings,
		ledger:         ledger,
		limiter:        NewRateLimiter(o.rps),
	}, nil
}

// Name returns "notion".
func (c *Client) Name() string {
	return TargetName
}

// Supports reports pages always and todos when a task database is set.
func (c *Client) Supports(itemType domain.ItemType) bool {
	switch itemType {
	case domain.ItemTypePage:
		return true
	case domain.ItemTypeTodo:
		return c.todoDatabaseID != ""
	default:
		return false
	}
}

// Upsert writes a page toggle or a todo row.
func (c *Client) Upsert(ctx context.Context, unit domain.SyncableUnit, externalRef string) (string, error) {
	switch unit.ItemType {
	case domain.ItemTypePage:
		return c.upsertPage(ctx, unit, externalRef)
	case domain.ItemTypeTodo:
		if c.todoDatabaseID == "" {
			return "", fmt.Errorf("notion: %w: todo database not configured", domain.ErrUnsupportedType)
		}
		return c.upsertTodo(ctx, unit, externalRef)
	default:
		return "", fmt.Errorf("notion: %w: %s", domain.ErrUnsupportedType, unit.ItemType)
	}
}

// ListKnownItems returns the page numbers of the toggles on the notebook's
// Notion page. A notebook without a page has no known items.
func (c *Client) ListKnownItems(ctx context.Context, ownerID string) (map[int]struct{}, error) {
	known := make(map[int]struct{})

	pageID, err := c.notebookPage(ctx, ownerID, "", false)
	if err != nil || pageID == "" {
		return known, err
	}

	cursor := ""
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.api.Block.GetChildren(ctx, notionapi.BlockID(pageID), &notionapi.Pagination{
			StartCursor: notionapi.Cursor(cursor),
			PageSize:    100,
		})
		if err != nil {
			return nil, c.check(wrapError(err, "list blocks"))
		}
		for _, b := range resp.Results {
			title, ok := toggleText(b)
			if !ok {
				continue
			}
			if n, ok := parsePageNumber(title); ok {
				known[n] = struct{}{}
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = string(resp.NextCursor)
	}

	logger.Debug("notion: %s has %d page toggles", ownerID, len(known))
	return known, nil
}

// upsertPage replaces the page toggle: the old block is deleted and a new
// one appended. A ref that no longer exists is simply recreated.
func (c *Client) upsertPage(ctx context.Context, unit domain.SyncableUnit, ref string) (string, error) {
	pageID, err := c.notebookPage(ctx, unit.OwnerID, unit.OwnerTitle, true)
	if err != nil {
		return "", err
	}

	if ref != "" {
		if err := c.deleteBlock(ctx, ref); err != nil && !IsNotFound(err) {
			return "", err
		}
	}

	toggle := pageToggle(unit.Sequence, unit.Confidence, unit.Text)
	blockID, err := c.appendBlock(ctx, pageID, toggle)
	if IsNotFound(err) {
		// The notebook page was deleted in Notion; find or create it again.
		logger.Warn("notion: notebook page %s is gone, resolving again", pageID)
		if pageID, err = c.resolveNotebookPage(ctx, unit.OwnerID, unit.OwnerTitle, true); err != nil {
			return "", err
		}
		blockID, err = c.appendBlock(ctx, pageID, toggle)
	}
	return blockID, err
}

func (c *Client) upsertTodo(ctx context.Context, unit domain.SyncableUnit, ref string) (string, error) {
	props := c.todoProperties(ctx, unit)

	if ref != "" {
		if err := c.wait(ctx); err != nil {
			return "", err
		}
		_, err := c.api.Page.Update(ctx, notionapi.PageID(ref), &notionapi.PageUpdateRequest{Properties: props})
		err = c.check(wrapError(err, "update todo"))
		if err == nil {
			return ref, nil
		}
		if !IsNotFound(err) {
			return "", err
		}
		logger.Debug("notion: todo page %s is gone, recreating", ref)
	}

	return c.createPage(ctx, c.todoDatabaseID, props, "create todo")
}

func (c *Client) todoProperties(ctx context.Context, unit domain.SyncableUnit) notionapi.Properties {
	props := notionapi.Properties{
		propName:     notionapi.TitleProperty{Title: richText(unit.Text)},
		propDone:     notionapi.CheckboxProperty{Checkbox: unit.Completed},
		propNotebook: notionapi.RichTextProperty{RichText: richText(unit.OwnerTitle)},
		propPage:     notionapi.NumberProperty{Number: float64(unit.Sequence)},
	}
	if link := c.sourceLink(ctx, unit); link != "" {
		source := richText(fmt.Sprintf("%s, Page %d", unit.OwnerTitle, unit.Sequence))
		source[0].Text.Link = &notionapi.Link{Url: link}
		props[propSource] = notionapi.RichTextProperty{RichText: source}
	}
	return props
}

// sourceLink points at the toggle of the page the todo was written on,
// when that page has been synced.
func (c *Client) sourceLink(ctx context.Context, unit domain.SyncableUnit) string {
	if c.ledger == nil || c.mappings == nil {
		return ""
	}
	rec, err := c.ledger.Get(ctx, TargetName, domain.ItemTypePage, domain.PageItemID(unit.OwnerID, unit.Sequence))
	if err != nil || rec.ExternalRef == "" {
		return ""
	}
	pageID, err := c.mappings.GetMapping(ctx, TargetName, unit.OwnerID)
	if err != nil {
		return ""
	}
	return blockLink(pageID, rec.ExternalRef)
}

// notebookPage returns the Notion page of a notebook, from the mapping
// cache when possible. With create unset a missing page yields "".
func (c *Client) notebookPage(ctx context.Context, ownerID, title string, create bool) (string, error) {
	if c.mappings != nil {
		id, err := c.mappings.GetMapping(ctx, TargetName, ownerID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("get notebook mapping: %w", err)
		}
	}
	return c.resolveNotebookPage(ctx, ownerID, title, create)
}

// resolveNotebookPage queries the database by UUID, creating the page if
// asked to, and refreshes the mapping cache.
func (c *Client) resolveNotebookPage(ctx context.Context, ownerID, title string, create bool) (string, error) {
	id, err := c.findNotebookPage(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if id == "" {
		if !create {
			return "", nil
		}
		if title == "" {
			title = ownerID
		}
		props := notionapi.Properties{
			propName: notionapi.TitleProperty{Title: richText(title)},
			propUUID: notionapi.RichTextProperty{RichText: richText(ownerID)},
		}
		if id, err = c.createPage(ctx, c.databaseID, props, "create notebook page"); err != nil {
			return "", err
		}
		logger.Info("notion: created page for notebook %q", title)
	}

	if c.mappings != nil {
		if err := c.mappings.SaveMapping(ctx, TargetName, ownerID, id); err != nil {
			return "", fmt.Errorf("save notebook mapping: %w", err)
		}
	}
	return id, nil
}

func (c *Client) findNotebookPage(ctx context.Context, ownerID string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(c.databaseID), &notionapi.DatabaseQueryRequest{
		Filter: &notionapi.PropertyFilter{
			Property: propUUID,
			RichText: &notionapi.TextFilterCondition{Equals: ownerID},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", c.check(wrapError(err, "query notebook page"))
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

func (c *Client) createPage(ctx context.Context, databaseID string, props notionapi.Properties, op string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	page, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: props,
	})
	if err != nil {
		return "", c.check(wrapError(err, op))
	}
	if page == nil || page.ID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}
	return string(page.ID), nil
}

func (c *Client) appendBlock(ctx context.Context, pageID string, block notionapi.Block) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.api.Block.AppendChildren(ctx, notionapi.BlockID(pageID), &notionapi.AppendBlockChildrenRequest{
		Children: []notionapi.Block{block},
	})
	if err != nil {
		return "", c.check(wrapError(err, "append block"))
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("append block: %w", ErrEmptyResponse)
	}
	return string(resp.Results[0].GetID()), nil
}

func (c *Client) deleteBlock(ctx context.Context, blockID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.api.Block.Delete(ctx, notionapi.BlockID(blockID))
	return c.check(wrapError(err, "delete block"))
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// check pauses the limiter when err reports rate limiting.
func (c *Client) check(err error) error {
	if IsRateLimited(err) {
		c.limiter.Backoff(rateLimitBackoff)
	}
	return err
}
