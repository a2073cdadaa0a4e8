package explain

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Environment switches for the fake oracle: the test binary re-executes
// itself with fakeOracleEnv set and serves the explain protocol.
const (
	fakeOracleEnv = "UICHECK_FAKE_ORACLE"
	fakeModeEnv   = "UICHECK_FAKE_MODE"      // "silent" never prompts
	fakeExitMark  = "UICHECK_FAKE_EXIT_MARK" // written after a slow, clean exit
	fakePrompt    = "Enter command > "
)

// fakeOracle mimics `souffle -t explain`. Like the real thing it buffers
// explain output and only writes an output file out when the next
// `output` command or exit arrives. Queries containing "corrupt" produce
// invalid JSON, "crash" kills the process, "stall" never answers.
func fakeOracle(in io.Reader, out io.Writer) int {
	if os.Getenv(fakeModeEnv) == "silent" {
		time.Sleep(time.Minute)
		return 1
	}

	var (
		file *os.File
		w    *bufio.Writer
		json bool
	)
	finish := func() {
		if w != nil {
			_ = w.Flush()
			_ = file.Close()
			w, file = nil, nil
		}
	}
	defer finish()

	fmt.Fprint(out, fakePrompt)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		cmd, arg, _ := strings.Cut(line, " ")

		switch cmd {
		case "format":
			json = arg == "json"
		case "output":
			finish()
			f, err := os.Create(arg)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				break
			}
			file, w = f, bufio.NewWriter(f)
		case "explain":
			switch {
			case strings.Contains(arg, "crash"):
				return 3
			case strings.Contains(arg, "stall"):
				time.Sleep(time.Minute)
				return 1
			}
			if w == nil {
				fmt.Fprintln(out, "no output file")
				break
			}
			switch {
			case !json:
				fmt.Fprintf(w, "%s <- proof\n", arg)
			case strings.Contains(arg, "corrupt"):
				fmt.Fprint(w, `{"proof": {"conclusion": `)
			default:
				fmt.Fprintf(w, `{"proof": {"conclusion": %q, "premises": ["idName(\"a\;b\")"]}, "rules": [{"rule-number": "R1", "rule": "r(v) :- idName(v, _)."}]}`, arg)
			}
		case "exit":
			if mark := os.Getenv(fakeExitMark); mark != "" {
				time.Sleep(200 * time.Millisecond)
				_ = os.WriteFile(mark, []byte("exited"), 0644)
			}
			return 0
		case "":
		default:
			fmt.Fprintf(out, "Unknown command %q\n", cmd)
		}
		fmt.Fprint(out, fakePrompt)
	}
	return 0
}
