package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/calmesh"
	"github.com/hupe1980/calmesh/core"
)

type env struct {
	mesh    *calmesh.CalMesh
	session core.Session
	flags   globalFlags
	out     io.Writer
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"folders":   foldersCmd,
	"subscribe": subscribeCmd,
	"events":    eventsCmd,
	"search":    searchCmd,
	"freebusy":  freeBusyCmd,
}

// envelope is the printed form of one keyed result.
type envelope struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printWarnings reports partial failures on stderr so stdout stays valid JSON.
func (e *env) printWarnings(warnings []error) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func foldersCmd(ctx context.Context, e *env, _ []string) error {
	a := e.mesh.Access(e.session)
	defer a.Close()
	folders, err := a.VisibleFolders(ctx, core.FolderTypePrivate)
	if err != nil {
		return err
	}
	out := make([]envelope, 0, len(folders))
	for _, f := range folders {
		out = append(out, envelope{Key: f.ID, Value: f, Error: errString(f.AccountError)})
	}
	e.printWarnings(a.Warnings())
	return e.print(out)
}

func subscribeCmd(ctx context.Context, e *env, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: subscribe <name> <url>")
	}
	id, err := e.mesh.Subscribe(ctx, e.session, args[0], args[1])
	if err != nil {
		return err
	}
	return e.print(envelope{Key: id})
}

func eventsCmd(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: events <folder-id>...")
	}
	a := e.mesh.Access(e.session)
	defer a.Close()
	res, err := a.EventsInFolders(ctx, args)
	if err != nil {
		return err
	}
	out := make([]envelope, 0, len(res))
	for _, r := range res {
		out = append(out, envelope{Key: r.Key, Value: r.Value.Events, Error: errString(r.Value.Err)})
	}
	return e.print(out)
}

func searchCmd(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: search <query>")
	}
	a := e.mesh.Access(e.session)
	defer a.Close()
	res, err := a.SearchEvents(ctx, nil, core.SearchTerm{Query: strings.Join(args, " ")})
	if err != nil {
		return err
	}
	out := make([]envelope, 0, len(res))
	for _, r := range res {
		out = append(out, envelope{Key: r.Key, Value: r.Value.Events, Error: errString(r.Value.Err)})
	}
	e.printWarnings(a.Warnings())
	return e.print(out)
}

func freeBusyCmd(ctx context.Context, e *env, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: freebusy <from> <until> <attendee>...")
	}
	from, err := time.Parse(time.RFC3339, args[0])
	if err != nil {
		return fmt.Errorf("invalid from: %w", err)
	}
	until, err := time.Parse(time.RFC3339, args[1])
	if err != nil {
		return fmt.Errorf("invalid until: %w", err)
	}
	attendees := make([]core.Attendee, 0, len(args)-2)
	for _, uri := range args[2:] {
		attendees = append(attendees, core.Attendee{URI: uri})
	}

	a := e.mesh.Access(e.session)
	defer a.Close()
	res, err := a.QueryFreeBusy(ctx, attendees, from, until, e.flags.merge)
	if err != nil {
		return err
	}
	out := make([]envelope, 0, len(res))
	for _, r := range res {
		out = append(out, envelope{Key: r.Key, Value: r.Value, Error: errString(r.Value.Err)})
	}
	e.printWarnings(a.Warnings())
	return e.print(out)
}
