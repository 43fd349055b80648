package worldstate

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var dumpSep = strings.Repeat("=", 80)

// Dump writes every committed key with its version and value, one per line.
// Composite keys are shown as objectType|attr1|attr2.
func (st *State) Dump(w io.Writer) error {
	entries, err := st.scanCommitted("")
	if err != nil {
		return err
	}
	info := st.Info()
	fmt.Fprintln(w, dumpSep)
	fmt.Fprintf(w, "state (%d keys, %v)\n", len(entries), info)
	for i, e := range entries {
		if e.Deleted() {
			fmt.Fprintf(w, "%d. %s = (v%d) <deleted>\n", i+1, loggableKey(e.Key), e.Version)
		} else {
			fmt.Fprintf(w, "%d. %s = (v%d) %s\n", i+1, loggableKey(e.Key), e.Version, loggableData(e.Data))
		}
	}
	return nil
}

func loggableKey(key string) string {
	if IsCompositeKey(key) {
		objectType, attrs, err := SplitCompositeKey(key)
		if err == nil {
			return objectType + "|" + strings.Join(attrs, "|")
		}
	}
	return strconv.Quote(key)
}

func loggableData(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return fmt.Sprintf("%x", data)
}
