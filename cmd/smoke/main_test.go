package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/iclim/ml-app/artifact"
	"github.com/iclim/ml-app/config"
	qhttp "github.com/iclim/ml-app/http"
	"github.com/iclim/ml-app/ml"
	"github.com/iclim/ml-app/ml/mltest"
	"github.com/iclim/ml-app/registry"
)

func newServer(t *testing.T, ids ...string) *httptest.Server {
	t.Helper()
	src := artifact.NewMemorySource()
	models := map[string]struct {
		model ml.Estimator
		meta  ml.Metadata
	}{
		"iris":     {mltest.IrisTree(), mltest.IrisMetadata()},
		"diabetes": {mltest.DiabetesRidge(), mltest.DiabetesMetadata()},
	}
	reg := registry.New(src)
	for _, id := range ids {
		m := models[id]
		modelBlob, metaBlob := mltest.MustEncode(m.model, m.meta)
		require.NoError(t, src.Put(context.Background(), id, artifact.Blobs{Model: modelBlob, Metadata: metaBlob}))
		require.NoError(t, reg.Register(id))
	}
	reg.LoadAll(context.Background())

	server := httptest.NewServer(qhttp.NewHandler(qhttp.DefaultServerConfig(), qhttp.Deps{
		Registry: reg,
		Catalog:  config.Default().FeatureCounts(),
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRunAgainstHealthyServer(t *testing.T) {
	server := newServer(t, "iris", "diabetes")

	var out bytes.Buffer
	err := run(context.Background(), server.Client(), server.URL+qhttp.APIPrefix+"/", &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"prediction": "setosa"`)
	assert.Contains(t, out.String(), "/nonexistent/health -> 404")
}

func TestRunReportsEveryFailure(t *testing.T) {
	server := newServer(t, "iris")

	err := run(context.Background(), server.Client(), server.URL+qhttp.APIPrefix, &bytes.Buffer{})
	require.Error(t, err)
	// health, predict, batch, info and the wrong-count case for diabetes all 404.
	assert.Len(t, multierr.Errors(err), 5)
	assert.ErrorContains(t, err, "diabetes health: status 404, want 200")
}

func TestRunUnreachable(t *testing.T) {
	server := newServer(t, "iris")
	server.Close()

	err := run(context.Background(), http.DefaultClient, server.URL+qhttp.APIPrefix, &bytes.Buffer{})
	assert.Len(t, multierr.Errors(err), len(checks()))
}
