package api

import (
	"encoding/json"
	"net/http"

	"phonorule.dev/machine/rules"
	"phonorule.dev/machine/utils"
)

type Request struct {
	Ruleset *rules.Ruleset
}

type ruleInfo struct {
	Name     string `json:"name"`
	Notation string `json:"notation"`
}

// ProcessData rewrites the newline separated words in a POST body and answers with their
// derivations.
func (req *Request) ProcessData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	logger := makeRequestLogger(r)

	if r.Method != http.MethodPost {
		logger.Error().Int("status", http.StatusMethodNotAllowed).Msg("Only 'POST' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	words, err := utils.ScanList(r.Body)
	if err != nil {
		logger.Err(err).Int("status", http.StatusBadRequest).Msg("Could not read request body")
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	logger.Info().Int("words", len(words)).Msg("Rewriting words for request from API")
	derivations, err := req.Ruleset.RewriteAll(words)
	if err != nil {
		logger.Err(err).Int("status", http.StatusUnprocessableEntity).Msg("Could not rewrite words")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err = json.NewEncoder(w).Encode(derivations); err != nil {
		logger.Err(err).Msg("Could not write response")
		return
	}
	logger.Info().Int("status", http.StatusOK).Msg("Finished processing request")
}

// Rules lists the compiled rules in application order.
func (req *Request) Rules(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	var infos []ruleInfo
	for _, rule := range req.Ruleset.Rules() {
		infos = append(infos, ruleInfo{Name: rule.Name, Notation: rule.String()})
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(infos)
}

// Handler routes the API endpoints.
func (req *Request) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", req.ProcessData)
	mux.HandleFunc("/rules", req.Rules)
	return mux
}
