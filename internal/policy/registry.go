package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// DefaultCacheSize bounds the number of remembered (class, title) decisions.
const DefaultCacheSize = 1024

// WorkingList holds the ordered working-list rules.
// The first rule whose class pattern matches decides.
type WorkingList struct {
	rules []compiledRule
	cache *lru.Cache[string, bool]
}

// NewWorkingList compiles rules in order. Invalid rules are skipped and
// reported in the returned error; the list is usable either way.
func NewWorkingList(rules []Rule) (*WorkingList, error) {
	cache, _ := lru.New[string, bool](DefaultCacheSize)
	w := &WorkingList{cache: cache}

	var skipped []string
	for i, r := range rules {
		cr, err := compile(r)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("rule %d: %v", i, err))
			continue
		}
		w.rules = append(w.rules, cr)
	}
	if len(skipped) > 0 {
		return w, fmt.Errorf("skipped invalid rules: %v", skipped)
	}
	return w, nil
}

// LoadWorkingList reads a rule list from path (JSON for .json files, YAML
// otherwise). An unreadable or malformed file yields an empty list, so
// everything counts as playing.
func LoadWorkingList(path string, logger *zap.Logger) *WorkingList {
	rules, err := readRules(path)
	if err != nil {
		logger.Warn("working list unavailable, classifying everything as playing",
			zap.String("path", path),
			zap.Error(err))
		rules = nil
	}

	w, err := NewWorkingList(rules)
	if err != nil {
		logger.Warn("working list has invalid rules", zap.String("path", path), zap.Error(err))
	}
	logger.Info("working list loaded", zap.String("path", path), zap.Int("rules", w.Len()))
	return w
}

func readRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read working list: %w", err)
	}
	var rules []Rule
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &rules)
	} else {
		err = yaml.Unmarshal(data, &rules)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse working list: %w", err)
	}
	return rules, nil
}

// IsWorking classifies a foreground target. No matching rule means playing.
func (w *WorkingList) IsWorking(class, title string) bool {
	key := class + "\x00" + title
	if v, ok := w.cache.Get(key); ok {
		return v
	}
	working := w.classify(class, title)
	w.cache.Add(key, working)
	return working
}

func (w *WorkingList) classify(class, title string) bool {
	for _, r := range w.rules {
		if claimed, working := r.decide(class, title); claimed {
			return working
		}
	}
	return false
}

// Rules returns the active rules in evaluation order.
func (w *WorkingList) Rules() []Rule {
	out := make([]Rule, len(w.rules))
	for i, r := range w.rules {
		out[i] = r.rule
	}
	return out
}

// Len returns the number of active rules.
func (w *WorkingList) Len() int {
	return len(w.rules)
}

// Ensure WorkingList implements domain.Classifier.
var _ domain.Classifier = (*WorkingList)(nil)
