// weft - interchange document CLI tool
//
// Usage:
//
//	weft convert [--from=FMT] [--to=FMT] [file]  Re-encode documents between formats
//	weft dump [--format=FMT] [file]              Inspect documents (hex for binary)
//	weft version                                 Print version info
//
// Formats: binary, text, json. If no file is given, reads from stdin.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/weftlabs/weft/buf"
	"github.com/weftlabs/weft/weft"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	from := weft.FormatText
	to := weft.FormatJSON
	format := weft.FormatBinary
	fileArg := ""
	for _, arg := range os.Args[2:] {
		switch {
		case strings.HasPrefix(arg, "--from="):
			from = mustFormat(strings.TrimPrefix(arg, "--from="))
		case strings.HasPrefix(arg, "--to="):
			to = mustFormat(strings.TrimPrefix(arg, "--to="))
		case strings.HasPrefix(arg, "--format="):
			format = mustFormat(strings.TrimPrefix(arg, "--format="))
		default:
			if !strings.HasPrefix(arg, "-") && arg != "-" {
				fileArg = arg
			}
		}
	}

	var input io.Reader = os.Stdin
	if fileArg != "" {
		f, err := os.Open(fileArg)
		if err != nil {
			fatal("open file: %v", err)
		}
		defer f.Close()
		input = f
	}

	switch cmd {
	case "convert":
		cmdConvert(input, from, to)
	case "dump":
		cmdDump(input, format)
	case "version", "-v", "--version":
		fmt.Printf("weft %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `weft - interchange document CLI tool

Usage:
  weft convert [--from=FMT] [--to=FMT] [file]  Re-encode documents between formats
  weft dump [--format=FMT] [file]              Inspect documents (hex for binary)
  weft version                                 Print version info

Formats: binary, text, json (convert defaults: text -> json).

If no file is given, reads from stdin.

Examples:
  echo 'name: hello' | weft convert --from=text --to=json
  weft convert --from=json --to=binary data.json > data.weft
  weft dump --format=binary data.weft
`)
}

// cmdConvert re-encodes every document of the input into the target format.
func cmdConvert(r io.Reader, from, to weft.Format) {
	data, err := io.ReadAll(r)
	if err != nil {
		fatal("read input: %v", err)
	}

	outBuf := buf.New(len(data))
	outWire := to.NewWire(outBuf, weft.Options{})

	err = weft.Documents(data, from, weft.Options{}, func(in weft.ValueIn) error {
		v, err := in.ReadValue()
		if err != nil {
			return err
		}
		return outWire.WriteDocument(func(out weft.ValueOut) error {
			out.WriteValue(v)
			return out.Err()
		})
	})
	if err != nil {
		fatal("convert: %v", err)
	}

	os.Stdout.Write(outBuf.Bytes())
}

// cmdDump walks the documents of the input, printing each one's span and
// content: hex panels for binary, verbatim for text and JSON.
func cmdDump(r io.Reader, format weft.Format) {
	data, err := io.ReadAll(r)
	if err != nil {
		fatal("read input: %v", err)
	}

	w := format.NewWire(buf.FromBytes(data), weft.Options{})
	n := 0
	for w.HasDocument() {
		span, err := w.PeekDocumentLength()
		if err != nil {
			fatal("document %d: %v", n, err)
		}
		start := w.Buffer().ReadPosition()
		if err := w.SkipDocument(); err != nil {
			fatal("document %d: %v", n, err)
		}
		n++

		fmt.Printf("--- Document %d (offset %d, %d bytes) ---\n", n, start, span)
		body := data[start : start+span]
		if format == weft.FormatBinary {
			fmt.Print(weft.HexDump(body))
		} else {
			fmt.Print(string(body))
			if len(body) == 0 || body[len(body)-1] != '\n' {
				fmt.Println()
			}
		}
	}
	fmt.Fprintf(os.Stderr, "\n--- %d documents ---\n", n)
}

func mustFormat(s string) weft.Format {
	f, err := weft.ParseFormat(s)
	if err != nil {
		fatal("%v", err)
	}
	return f
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "weft: "+format+"\n", args...)
	os.Exit(1)
}
