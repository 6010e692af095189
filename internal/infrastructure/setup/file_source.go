package setup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/vitos/trade_engine/internal/domain"
)

// FileSource reads the latest analysis output for a symbol from a directory
// maintained by the external analysis pipeline. A `<symbol>.json` file is
// taken as a structured setup; `<symbol>.txt` as the 7-line summary. The
// JSON form wins when both exist.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) Latest(_ context.Context, symbol string) (domain.SetupPayload, error) {
	name := strings.ToUpper(symbol)

	if data, err := os.ReadFile(filepath.Join(s.dir, name+".json")); err == nil {
		var structured domain.Setup
		if err := json.Unmarshal(data, &structured); err == nil {
			return domain.SetupPayload{Structured: &structured}, nil
		}
		// Malformed JSON falls through to the text form.
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name+".txt"))
	if err != nil {
		if os.IsNotExist(err) {
			// No output yet this cycle; the extractor treats empty text as
			// not-yet-available.
			return domain.SetupPayload{}, nil
		}
		return domain.SetupPayload{}, err
	}
	return domain.SetupPayload{Text: string(data)}, nil
}
