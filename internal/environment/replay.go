package environment

import (
	"context"
	"fmt"
)

// Replay rebuilds an environment called name from scratch by re-executing
// every entry of source in order through the handlers in opts. Installs use
// the pinned packages each entry recorded, so replaying a history produced by
// install and remove calls yields the same dependency snapshot.
//
// progress, if non-nil, is called after each replayed entry.
func Replay(ctx context.Context, source *History, name string, progress func(i int, e Entry), opts ...Option) (*Environment, error) {
	env := New(name, opts...)
	env.history.Channels = append([]string(nil), source.Channels...)

	for i, entry := range source.Entries {
		if err := ctx.Err(); err != nil {
			return env, err
		}

		var err error
		switch entry.Kind {
		case KindCreate:
			err = env.Create(ctx, entry.Packages)
		case KindInstall:
			err = env.Install(ctx, entry.Ecosystem, entry.Packages)
		case KindRemove:
			err = env.Remove(ctx, entry.Ecosystem, entry.Packages)
		default:
			err = fmt.Errorf("unknown history entry kind %q", entry.Kind)
		}
		if err != nil {
			return env, fmt.Errorf("failed to replay entry %d (%s): %w", i+1, entry.Log, err)
		}

		if progress != nil {
			progress(i, entry)
		}
	}

	return env, nil
}

// VerifyReplay checks that replayed reproduces the dependency snapshot of
// source.
func VerifyReplay(source, replayed *Environment) error {
	if source.deps.Equal(replayed.deps) {
		return nil
	}

	var diffs []string
	for _, eco := range ecosystemsOf(source.deps, replayed.deps) {
		for _, d := range diffSlice(source.deps[eco], replayed.deps[eco]) {
			diffs = append(diffs, fmt.Sprintf("%s/%s", eco, d))
		}
	}
	return fmt.Errorf("replayed environment %s differs from %s: %v", replayed.Name, source.Name, diffs)
}

func diffSlice(want, got map[string]Dependency) []string {
	var out []string
	for name, d := range want {
		g, ok := got[name]
		switch {
		case !ok:
			out = append(out, "-"+name)
		case g != d:
			out = append(out, fmt.Sprintf("~%s(%s->%s)", name, d.Version, g.Version))
		}
	}
	for name := range got {
		if _, ok := want[name]; !ok {
			out = append(out, "+"+name)
		}
	}
	return out
}
