package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	lastIn *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	return f.getOut, f.getErr
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: aws.String("/chat-relay/deepseek-token"), Value: aws.String(`{"token":"sk"}`), Type: types.ParameterTypeSecureString,
	}}}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /chat-relay/deepseek-token ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"sk"}`, v)
	require.Equal(t, "/chat-relay/deepseek-token", aws.ToString(api.lastIn.Name))
	require.True(t, aws.ToBool(api.lastIn.WithDecryption))
}

func TestGetParameter_Failures(t *testing.T) {
	cases := []struct {
		name   string
		client *Client
		param  string
		want   string
	}{
		{name: "missing value", client: &Client{api: &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p")}}}}, param: "p", want: "missing value"},
		{name: "nil output", client: &Client{api: &fakeAPI{}}, param: "p", want: "missing value"},
		{name: "blank value", client: &Client{api: &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(" \n")}}}}, param: "p", want: "missing value"},
		{name: "api error", client: &Client{api: &fakeAPI{getErr: errors.New("boom")}}, param: "p", want: "boom"},
		{name: "not initialized", client: &Client{}, param: "p", want: "not initialized"},
		{name: "nil client", client: nil, param: "p", want: "not initialized"},
		{name: "empty name", client: &Client{api: &fakeAPI{}}, param: "  ", want: "required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.client.GetParameter(context.Background(), tc.param)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestGetParameter_NotFound(t *testing.T) {
	client, err := New(&fakeAPI{getErr: &types.ParameterNotFound{Message: aws.String("no such parameter")}})
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "/chat-relay/missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "/chat-relay/missing")
}

func TestGetParameter_TrimsValue(t *testing.T) {
	client, err := New(&fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(" sk-live\n")}}})
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "sk-live", v)
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}
