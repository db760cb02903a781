package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/aanand-mishra/student-crud/internal/controller"
	"github.com/aanand-mishra/student-crud/internal/querycache"
	"github.com/aanand-mishra/student-crud/internal/types"
)

const shellHelp = `commands:
  show                   render the list and the form
  set <field> <value>    set a form field (name, email, address, birthdate, avatar)
  edit <id>              load a student into the form for editing
  cancel                 leave editing and clear the form
  submit                 create, or update the student being edited
  delete <id>            delete a student
  refresh                refetch the list
  stats                  show fetch statistics
  help                   show this help
  quit                   exit`

// GetShellCmd returns the interactive shell command.
func GetShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive student list and form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sh := &shell{app: a, out: os.Stdout}
			return sh.run(cmd.Context(), os.Stdin)
		},
	}
}

func init() {
	rootCmd.AddCommand(GetShellCmd())
}

// shell reads commands line by line. Mutations run in the background so
// the prompt stays usable; results and list refreshes are printed as they
// arrive.
type shell struct {
	*app

	outMu sync.Mutex
	out   io.Writer
	wg    sync.WaitGroup
}

func (s *shell) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *shell) render() {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := controller.Render(s.out, s.ctrl.View()); err != nil {
		s.log.Warn("render failed", "error", err)
	}
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	updates, unsubscribe := s.cache.Subscribe()
	defer unsubscribe()

	go func() {
		for key := range updates {
			if key != controller.StudentsKey {
				continue
			}
			if s.ctrl.View().Status != querycache.StatusLoading {
				s.render()
			}
		}
	}()

	s.render()
	s.printf("%s\n", shellHelp)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	defer s.wg.Wait()
	for {
		s.printf("> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if quit := s.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "":
	case "quit", "exit":
		return true
	case "help":
		s.printf("%s\n", shellHelp)
	case "show":
		s.render()
	case "set":
		field, value, _ := strings.Cut(rest, " ")
		if err := s.ctrl.SetField(field, strings.TrimSpace(value)); err != nil {
			s.printf("%v\n", err)
		}
	case "edit":
		if err := s.ctrl.BeginEdit(rest); err != nil {
			s.printf("%v\n", err)
			return false
		}
		s.render()
	case "cancel":
		s.ctrl.Cancel()
		s.render()
	case "submit":
		s.background(func() {
			rec, err := s.ctrl.Submit(ctx)
			if err != nil {
				s.printf("\nsubmit: %v\n", err)
				return
			}
			s.printf("\nsaved student %s\n", rec.ID)
		})
	case "delete":
		id := rest
		s.background(func() {
			if err := s.ctrl.Delete(ctx, id); err != nil {
				s.printf("\ndelete: %v\n", err)
				return
			}
			s.printf("\ndeleted student %s\n", id)
		})
	case "refresh":
		s.ctrl.Retry()
	case "stats":
		st := s.cache.Stats(controller.StudentsKey)
		s.printf("fetches=%d failures=%d dropped=%d avg=%s pending=%d\n",
			st.Fetches, st.Failures, st.Dropped, st.AvgFetch, s.cache.Pending())
	default:
		if _, ok := (types.Fields{}).Get(verb); ok {
			s.printf("did you mean: set %s %s\n", verb, rest)
			return false
		}
		s.printf("unknown command %q, try help\n", verb)
	}
	return false
}

func (s *shell) background(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
