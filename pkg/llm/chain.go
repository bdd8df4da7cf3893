package llm

import "context"

// Middleware wraps a Generator with additional behaviour.
type Middleware func(next Generator) Generator

type generatorFunc struct {
	generate func(context.Context, Request) (Response, error)
	model    func() string
}

func (f generatorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f.generate(ctx, req)
}

func (f generatorFunc) Model() string {
	return f.model()
}

// WrapGenerator builds a Generator from plain functions, for middleware.
func WrapGenerator(generate func(context.Context, Request) (Response, error), model func() string) Generator {
	return generatorFunc{generate: generate, model: model}
}

// Chain composes middlewares around base; the first one is outermost:
//
//	Chain(g, a, b) == a(b(g))
func Chain(base Generator, middlewares ...Middleware) Generator {
	g := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		g = middlewares[i](g)
	}
	return g
}

// Priced fills Response.CostUSD from tier rates and the reported usage.
func Priced(tier Tier) Middleware {
	return func(next Generator) Generator {
		return WrapGenerator(func(ctx context.Context, req Request) (Response, error) {
			resp, err := next.Generate(ctx, req)
			if err != nil {
				return resp, err //nolint:wrapcheck // pass-through
			}
			resp.CostUSD = tier.Cost(resp.InputTokens, resp.OutputTokens)
			if resp.Model == "" {
				resp.Model = next.Model()
			}
			return resp, nil
		}, next.Model)
	}
}
