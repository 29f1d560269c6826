package credential

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// PromptLayer asks for a key on w and reads one line from r.
// End of input counts as no answer rather than an error.
func PromptLayer(r io.Reader, w io.Writer, label string) Layer {
	return Layer{
		Origin: OriginEntered,
		Lookup: func() (string, error) {
			fmt.Fprintf(w, "%s: ", label)

			line, err := bufio.NewReader(r).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			return strings.TrimSpace(line), nil
		},
	}
}
