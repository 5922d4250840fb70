package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// OpenLibraryClient fetches book metadata from the OpenLibrary API.
type OpenLibraryClient struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rateLimiter
}

type rateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (r *rateLimiter) wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := time.Since(r.lastCall)
	if since < r.interval {
		time.Sleep(r.interval - since)
	}
	r.lastCall = time.Now()
}

const userAgent = "Stacks/1.0 (https://github.com/jwhitley/stacks)"

// NewOpenLibraryClient creates a new OpenLibrary API client with rate limiting.
func NewOpenLibraryClient() *OpenLibraryClient {
	return &OpenLibraryClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:     "https://openlibrary.org",
		rateLimiter: newRateLimiter(time.Second), // 1 request per second
	}
}

// NewOpenLibraryClientWithBaseURL is used by tests to point at a stub server.
func NewOpenLibraryClientWithBaseURL(baseURL string) *OpenLibraryClient {
	c := NewOpenLibraryClient()
	c.baseURL = baseURL
	c.rateLimiter = newRateLimiter(0)
	return c
}

// LookupByISBN looks up one edition by its ISBN.
func (c *OpenLibraryClient) LookupByISBN(ctx context.Context, isbn string) (*Record, error) {
	isbn = NormalizeISBN(isbn)
	if isbn == "" {
		return nil, fmt.Errorf("invalid ISBN")
	}

	c.rateLimiter.wait()

	url := fmt.Sprintf("%s/isbn/%s.json", c.baseURL, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ISBN data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("ISBN not found: %s", isbn)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var bookData openLibraryBook
	if err := json.NewDecoder(resp.Body).Decode(&bookData); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	record := c.convertToRecord(&bookData, isbn)

	// Fetch author info separately; the edition document only carries refs
	if len(bookData.Authors) > 0 && record.Author == "" {
		authorName, err := c.fetchAuthorName(ctx, bookData.Authors[0].Key)
		if err == nil {
			record.Author = authorName
		}
	}

	return record, nil
}

// SearchByTitle searches editions by title, best matches first.
func (c *OpenLibraryClient) SearchByTitle(ctx context.Context, title string, max int) ([]Record, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if max <= 0 {
		max = 5
	}

	c.rateLimiter.wait()

	searchURL := fmt.Sprintf("%s/search.json?q=%s&limit=%d", c.baseURL, url.QueryEscape(title), max)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var searchResult openLibrarySearchResult
	if err := json.NewDecoder(resp.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if len(searchResult.Docs) == 0 {
		return nil, fmt.Errorf("no results found for: %s", title)
	}

	records := make([]Record, 0, len(searchResult.Docs))
	for i := range searchResult.Docs {
		records = append(records, *c.convertSearchDocToRecord(&searchResult.Docs[i]))
	}
	return records, nil
}

func (c *OpenLibraryClient) fetchAuthorName(ctx context.Context, authorKey string) (string, error) {
	if authorKey == "" {
		return "", fmt.Errorf("empty author key")
	}

	c.rateLimiter.wait()

	url := fmt.Sprintf("%s%s.json", c.baseURL, authorKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status: %d", resp.StatusCode)
	}

	var authorData struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authorData); err != nil {
		return "", err
	}

	return authorData.Name, nil
}

func (c *OpenLibraryClient) convertToRecord(book *openLibraryBook, queried string) *Record {
	record := &Record{
		Title:          book.Title,
		OpenLibraryKey: book.Key,
		PageCount:      book.NumberOfPages,
	}

	if len(book.ISBN10) > 0 {
		record.ISBN10 = NormalizeISBN(book.ISBN10[0])
	}
	if len(book.ISBN13) > 0 {
		record.ISBN13 = NormalizeISBN(book.ISBN13[0])
	}
	// Make sure the queried form is present even when the edition document
	// omits it
	switch len(queried) {
	case 10:
		if record.ISBN10 == "" {
			record.ISBN10 = queried
		}
	case 13:
		if record.ISBN13 == "" {
			record.ISBN13 = queried
		}
	}

	if queried != "" {
		record.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/isbn/%s-L.jpg", queried)
	}

	if book.PublishDate != "" {
		record.PublicationYear = extractYear(book.PublishDate)
	}

	if len(book.Publishers) > 0 {
		record.Publisher = book.Publishers[0]
	}

	// Description can be a bare string or {type, value}
	switch v := book.Description.(type) {
	case string:
		record.Description = v
	case map[string]any:
		if val, ok := v["value"].(string); ok {
			record.Description = val
		}
	}

	if len(book.Subjects) > 0 {
		record.Categories = book.Subjects
		if len(record.Categories) > 10 {
			record.Categories = record.Categories[:10]
		}
	}

	return record
}

func (c *OpenLibraryClient) convertSearchDocToRecord(doc *openLibrarySearchDoc) *Record {
	record := &Record{
		Title:           doc.Title,
		PublicationYear: doc.FirstPublishYear,
	}

	if len(doc.AuthorName) > 0 {
		record.Author = doc.AuthorName[0]
	}

	if len(doc.Publisher) > 0 {
		record.Publisher = doc.Publisher[0]
	}

	for _, raw := range doc.ISBN {
		isbn := NormalizeISBN(raw)
		switch len(isbn) {
		case 10:
			if record.ISBN10 == "" {
				record.ISBN10 = isbn
			}
		case 13:
			if record.ISBN13 == "" {
				record.ISBN13 = isbn
			}
		}
		if record.ISBN10 != "" && record.ISBN13 != "" {
			break
		}
	}

	if record.ISBN13 != "" {
		record.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/isbn/%s-L.jpg", record.ISBN13)
	} else if record.ISBN10 != "" {
		record.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/isbn/%s-L.jpg", record.ISBN10)
	} else if doc.CoverI != 0 {
		record.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", doc.CoverI)
	}

	if len(doc.Subject) > 0 {
		record.Categories = doc.Subject
		if len(record.Categories) > 10 {
			record.Categories = record.Categories[:10]
		}
	}

	if doc.Key != "" {
		record.OpenLibraryKey = doc.Key
	}

	return record
}

// extractYear tries to extract a 4-digit year from a date string.
func extractYear(dateStr string) int {
	dateStr = strings.TrimSpace(dateStr)
	if len(dateStr) < 4 {
		return 0
	}

	formats := []string{
		"2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2006-01-02",
		"January 2006",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.Year()
		}
	}

	// Last resort: find 4 consecutive digits
	for i := 0; i <= len(dateStr)-4; i++ {
		if dateStr[i] >= '0' && dateStr[i] <= '9' {
			yearStr := dateStr[i : i+4]
			var year int
			if _, err := fmt.Sscanf(yearStr, "%d", &year); err == nil && year > 1000 && year < 3000 {
				return year
			}
		}
	}

	return 0
}

// OpenLibrary API response types (internal)

type openLibraryBook struct {
	Key           string      `json:"key"`
	Title         string      `json:"title"`
	Authors       []authorRef `json:"authors"`
	Publishers    []string    `json:"publishers"`
	PublishDate   string      `json:"publish_date"`
	NumberOfPages int         `json:"number_of_pages"`
	Description   any         `json:"description"` // Can be string or {type, value}
	Subjects      []string    `json:"subjects"`
	ISBN10        []string    `json:"isbn_10"`
	ISBN13        []string    `json:"isbn_13"`
}

type authorRef struct {
	Key string `json:"key"`
}

type openLibrarySearchResult struct {
	NumFound int                   `json:"numFound"`
	Docs     []openLibrarySearchDoc `json:"docs"`
}

type openLibrarySearchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	FirstPublishYear int      `json:"first_publish_year"`
	Publisher        []string `json:"publisher"`
	ISBN             []string `json:"isbn"`
	CoverI           int      `json:"cover_i"`
	Subject          []string `json:"subject"`
}

// Compile-time interface check
var _ Provider = (*OpenLibraryClient)(nil)
