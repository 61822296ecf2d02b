// Command appcrawler harvests application metadata and comments from a storefront listing.
//
// Pipeline per application URL:
//   - Render: headless Chrome (chromedp) loads the page and clicks the comment
//     list's load-more control until it disappears, bounded by a navigation
//     timeout and an overall expansion budget.
//   - Extract: goquery parses the rendered markup into one application record
//     and its comments; text is NFKC-normalized with zero-width non-joiners removed.
//   - Persist: records are appended to the Apps and Comments sheets of an
//     .xlsx workbook; failures go to a CSV ledger with their kind.
//
// Optional outputs, each enabled by config: raw HTML snapshots (local or GCS),
// a Postgres audit row per render, a Pub/Sub notification per application,
// Redis skip-if-seen across runs and a /metrics endpoint.
//
// Run locally: go run ./cmd/appcrawler crawl --config config.yaml
package main

import "github.com/JakeFAU/storefront-review-crawler/cmd"

func main() {
	cmd.Execute()
}
