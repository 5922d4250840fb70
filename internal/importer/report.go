package importer

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/jwhitley/stacks/internal/entities"
)

// WriteErrorReport renders the job's retained row errors as a downloadable
// CSV. Only the bounded in-job log is available; earlier overflow entries
// were dropped oldest-first.
func WriteErrorReport(w io.Writer, job *entities.ImportJob) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"row", "type", "message", "isbn", "title", "author", "source", "raw_row"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, e := range job.Errors {
		record := []string{
			strconv.Itoa(e.Row),
			e.Type,
			e.Message,
			e.ISBN,
			e.Title,
			e.Author,
			job.SourceName,
			e.RawRow,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
