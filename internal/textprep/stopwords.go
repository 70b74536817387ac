package textprep

import (
	"bufio"
	_ "embed"
	"strings"
	"sync"
)

//go:embed stopwords_en.txt
var englishStopwords string

var (
	stopwordsOnce sync.Once
	stopwordsSet  map[string]struct{}
)

// Stopwords returns the English stopword set, parsing the embedded list on first use.
// The returned map must not be modified.
func Stopwords() map[string]struct{} {
	stopwordsOnce.Do(func() {
		stopwordsSet = parseStopwords(englishStopwords)
	})
	return stopwordsSet
}

func parseStopwords(list string) map[string]struct{} {
	set := make(map[string]struct{}, 200)
	sc := bufio.NewScanner(strings.NewReader(list))
	for sc.Scan() {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}
