package webui

import (
	"context"
	"log/slog"
	"net/http"
)

type mainDataBuilder struct{}

func (mainDataBuilder) Build(ctx context.Context, bc *builderCtx) (any, error) {
	type data struct {
		User *userPartData
	}

	sess := bc.SafeGetSession(ctx)
	if sess == nil {
		return &data{}, nil
	}
	return &data{User: buildUserPartData(sess, nil)}, nil
}

func mainPage(log *slog.Logger, cfg *Config, templ *templator) (http.Handler, error) {
	return newPage(log, cfg, templ, mainDataBuilder{}, "main")
}
