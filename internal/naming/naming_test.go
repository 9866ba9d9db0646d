package naming

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"kiln/internal/source"
)

func TestExpand(t *testing.T) {
	d := source.Sum([]byte("chunk body"))
	v := Vars{Name: "logo", Ext: ".png", ContentHash: d}

	tests := []struct {
		tmpl string
		want string
	}{
		{"static/js/bundle.js", "static/js/bundle.js"},
		{"static/js/[name].chunk.js", "static/js/logo.chunk.js"},
		{"static/assets/[name].[hash:8].[ext]", "static/assets/logo." + d.Short(8) + ".png"},
		{"[contenthash].js", d.Short(DefaultHashLen) + ".js"},
		{"./a/../[name].js", "logo.js"},
	}
	for _, tt := range tests {
		got, err := Expand(tt.tmpl, v)
		require.NoError(t, err, tt.tmpl)
		require.Equal(t, tt.want, got, tt.tmpl)
	}
}

func TestExpandErrors(t *testing.T) {
	v := Vars{Name: "app", ContentHash: source.Sum(nil)}

	_, err := Expand("[name].[chunkhash].js", v)
	require.True(t, errors.Is(err, ErrUnknownToken))
	var terr *TemplateError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, "[chunkhash]", terr.Token)

	_, err = Expand("[name.js", v)
	require.True(t, errors.Is(err, ErrUnknownToken))

	_, err = Expand("[hash:x].js", v)
	require.True(t, errors.Is(err, ErrUnknownToken))

	_, err = Expand("[name].js", Vars{})
	require.True(t, errors.Is(err, ErrEmptyName))

	_, err = Expand("../[name].js", v)
	require.True(t, errors.Is(err, ErrUnsafePath))
}

func TestValidateAndHasHash(t *testing.T) {
	require.NoError(t, Validate("static/js/[name].[contenthash:8].js"))
	require.Error(t, Validate("[bogus]"))
	require.True(t, HasHash("[name].[hash:8].js"))
	require.False(t, HasHash("[name].js"))
}
