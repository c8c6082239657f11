package gitctx

import (
	git "github.com/go-git/go-git/v5"
)

// Context captures a minimal view of the checkout a run operated on, for
// report metadata. CI logs correlate reconciliation outcomes with the exact
// commit that was built.
type Context struct {
	SHA    string `json:"sha,omitempty"`
	Branch string `json:"branch,omitempty"`
	Dirty  bool   `json:"dirty,omitempty"`
}

// Collect gathers git context for the repo containing target. Best-effort:
// returns nil when target is not inside a repository.
func Collect(target string) *Context {
	repo, err := git.PlainOpenWithOptions(target, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil
	}
	ctx := &Context{
		SHA:    head.Hash().String(),
		Branch: head.Name().Short(),
	}
	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			ctx.Dirty = !status.IsClean()
		}
	}
	return ctx
}
