// Package crawler holds the records, error taxonomy and collaborator interfaces
// shared by the renderer, extractor, stores and the per-application pipeline.
package crawler
