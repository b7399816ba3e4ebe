package grammar

import (
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"phonorule.dev/machine/logger"
)

// LoadGrammars loads every .yaml file of dirPath. Files that fail to load are logged and
// skipped.
func LoadGrammars(dirPath string) ([]*Grammar, error) {
	grammarLogger := logger.NewLogger("LoadGrammars")

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	grammarChan := make(chan *Grammar, len(entries))
	for _, entry := range entries {
		// Skip dirs and non-yaml files
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			g, err := LoadFile(path.Join(dirPath, name))
			if err != nil {
				grammarLogger.Err(err).Str("file", name).Msg("grammar skipped")
				return
			}
			if g.Name == "" {
				g.Name = strings.TrimSuffix(name, ".yaml")
			}
			grammarChan <- g
		}(entry.Name())
	}

	go func() {
		wg.Wait()
		close(grammarChan)
	}()

	grammars := make([]*Grammar, 0, len(grammarChan))
	for g := range grammarChan {
		grammars = append(grammars, g)
	}
	sort.Slice(grammars, func(i, j int) bool {
		return grammars[i].Name < grammars[j].Name
	})
	return grammars, nil
}
