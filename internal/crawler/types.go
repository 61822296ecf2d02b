// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// InfoCubeFields lists the metadata fields sourced from the header info cubes, in page order.
var InfoCubeFields = []string{
	"installation_counts",
	"app_score",
	"app_category",
	"app_size",
	"app_last_update",
}

// ApplicationMetadata is the record derived from one application detail page.
type ApplicationMetadata struct {
	AppID              string   `json:"app_id"`
	AppName            string   `json:"app_name"`
	DescriptionContent string   `json:"description_content"`
	InstallationCounts string   `json:"installation_counts"`
	AppScore           string   `json:"app_score"`
	AppCategory        string   `json:"app_category"`
	AppSize            string   `json:"app_size"`
	AppLastUpdate      string   `json:"app_last_update"`
	AppImages          []string `json:"app_images"`
}

// NewApplicationMetadata builds a record, filling info-cube fields positionally.
// Missing cubes default to the empty string and a nil image list becomes empty.
func NewApplicationMetadata(appID, name, description string, cubes []string, images []string) ApplicationMetadata {
	cube := func(i int) string {
		if i < len(cubes) {
			return cubes[i]
		}
		return ""
	}
	if images == nil {
		images = []string{}
	}
	return ApplicationMetadata{
		AppID:              appID,
		AppName:            name,
		DescriptionContent: description,
		InstallationCounts: cube(0),
		AppScore:           cube(1),
		AppCategory:        cube(2),
		AppSize:            cube(3),
		AppLastUpdate:      cube(4),
		AppImages:          images,
	}
}

// Comment is one user review attached to an application.
type Comment struct {
	CommentID   string `json:"comment_id"`
	AppID       string `json:"app_id"`
	Username    string `json:"username"`
	AccountID   string `json:"account_id"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment"`
	CommentDate string `json:"comment_date"`
}

// FailureRecord is one row of the failure ledger.
type FailureRecord struct {
	URL          string
	ErrorKind    ErrorKind
	ErrorMessage string
}

// RenderedPage is the output of a completed render.
type RenderedPage struct {
	URL        string
	HTML       string
	Expansions int
	Duration   time.Duration
}

// FetchRequest captures everything needed to fetch a URL without a browser.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}

// RetrievalRecord is the audit row persisted for each completed render.
type RetrievalRecord struct {
	ID           string
	AppID        string
	URL          string
	Hash         string
	BlobURI      string
	Expansions   int
	CommentCount int
	DurationMs   int64
	RetrievedAt  time.Time
}

// QueueItem wraps a target URL ready to run.
type QueueItem struct {
	URL     string
	Attempt int
}

// RunCounters tracks the outcome of a crawl run.
type RunCounters struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Seen      int `json:"seen"`
	Comments  int `json:"comments"`
	Retries   int `json:"retries"`
}
