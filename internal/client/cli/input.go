package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword. Tests swap it for a
// stub so no terminal is needed.
var readPassword = term.ReadPassword

// GetSimpleText prints prompt to w and reads a single line from reader.
//
// Surrounding whitespace, including the newline, is trimmed. A last line that
// ends at EOF without a newline is still returned; EOF on an empty line is
// reported as io.EOF so the REPL can exit.
//
// The prompt renders as:
//
//	Recipient user id
//	> _
//
// Parameters:
//
//	reader  buffered input, normally wrapping os.Stdin
//	prompt  text shown above the "> " marker
//	w       where the prompt is written
//
// Returns:
//
//	The trimmed line, or the read or write error.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword prints a password prompt to w and reads the password from the
// terminal on stdin without echo. A newline is written after the read so the
// next prompt starts on its own line.
//
// Returns:
//
//	The raw password bytes. The caller should zero them once they have been
//	sent to the server.
func GetPassword(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Enter password: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}
