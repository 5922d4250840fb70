package http

import (
	"github.com/jwhitley/stacks/internal/database"
	"github.com/jwhitley/stacks/internal/database/books"
	"github.com/jwhitley/stacks/internal/jobstore"
	"github.com/jwhitley/stacks/internal/readinghistory"
	"github.com/jwhitley/stacks/internal/tasks"
)

// RouterConfig contains all dependencies and configuration needed to create
// the HTTP router. A single struct keeps NewRouter's signature stable as
// dependencies grow.
type RouterConfig struct {
	Database *database.Database
	Catalog  *books.Repository
	JobStore jobstore.Store

	// Reading-history resolution handling
	Reconciler *readinghistory.Reconciler

	// Task queue client for detached imports
	TaskClient *tasks.Client

	// Directory for temporary upload files
	UploadsDir string

	// Application info
	Version string
}
