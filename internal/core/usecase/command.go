package usecase

import (
	"fmt"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// commandBuilder assembles a CommandSpec. Every token, literal or not, goes
// through the escaper so the logged rendering is always a valid shell line.
// Request values are marked as user tokens and fail the build as invalid input
// when the escaper refuses them.
type commandBuilder struct {
	p    *pipeline
	tool domain.ToolPath
	args []domain.CommandArg
	err  error
}

func (p *pipeline) command(toolName string) *commandBuilder {
	p.enter(domain.StageBuildingCommand)
	b := &commandBuilder{p: p}
	tool, err := p.uc.tools.Lookup(toolName)
	if err != nil {
		b.err = fmt.Errorf("%s: %w", p.op, err)
		return b
	}
	b.tool = tool
	return b
}

func (b *commandBuilder) add(raw string, user, secret bool) *commandBuilder {
	if b.err != nil {
		return b
	}
	quoted, err := b.p.uc.escaper.Quote(raw)
	if err != nil {
		if user {
			b.err = domain.WrapError(domain.ErrInvalidInput, string(b.p.op), fmt.Errorf("parameter cannot be passed to %s: %w", b.tool.Name, err))
		} else {
			b.err = fmt.Errorf("%s: escape argument: %w", b.p.op, err)
		}
		return b
	}
	b.args = append(b.args, domain.CommandArg{Raw: raw, Quoted: quoted, User: user, Secret: secret})
	return b
}

// flag appends literal tokens chosen by the service.
func (b *commandBuilder) flag(values ...string) *commandBuilder {
	for _, v := range values {
		b.add(v, false, false)
	}
	return b
}

// path appends scratch paths. They are generated names, never request text.
func (b *commandBuilder) path(paths ...string) *commandBuilder {
	for _, p := range paths {
		b.add(p, false, false)
	}
	return b
}

// value appends a token that carries request-supplied text.
func (b *commandBuilder) value(v string) *commandBuilder {
	return b.add(v, true, false)
}

func (b *commandBuilder) secret(v string) *commandBuilder {
	return b.add(v, true, true)
}

func (b *commandBuilder) build() (domain.CommandSpec, error) {
	if b.err != nil {
		return domain.CommandSpec{}, b.err
	}
	program, err := b.p.uc.escaper.Quote(b.tool.Path)
	if err != nil {
		return domain.CommandSpec{}, fmt.Errorf("%s: escape program path: %w", b.p.op, err)
	}
	return domain.NewCommandSpec(b.tool.Name, b.tool.Path, program, b.args), nil
}
