package provider

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	client := NewClient("https://api.provider.test/v3", "test-api-key")
	httpmock.ActivateNonDefault(client.httpClient)

	t.Run("登记成功返回记录列表", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodPost, "https://api.provider.test/v3/whitelabel/domains",
			func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "Bearer test-api-key", req.Header.Get("Authorization"))
				return httpmock.NewJsonResponse(http.StatusCreated, map[string]any{
					"id":     12345,
					"domain": "example.com",
					"valid":  false,
					"dns": map[string]any{
						"mail_cname": map[string]any{
							"valid": false,
							"type":  "cname",
							"host":  "mail.example.com",
							"data":  "u12345.wl.provider.test",
						},
						"dkim1": map[string]any{
							"valid": false,
							"type":  "cname",
							"host":  "s1._domainkey.example.com",
							"data":  "s1.domainkey.u12345.wl.provider.test",
						},
					},
				})
			})

		reg, err := client.Register(context.Background(), "example.com")

		require.NoError(t, err)
		assert.Equal(t, int64(12345), reg.ID)
		require.Len(t, reg.Records, 2)
		// 记录按子校验名称排序
		assert.Equal(t, "dkim1", reg.Records[0].Name)
		assert.Equal(t, "s1._domainkey.example.com", reg.Records[0].Host)
		assert.Equal(t, "mail_cname", reg.Records[1].Name)
		assert.Equal(t, "u12345.wl.provider.test", reg.Records[1].Value)
	})

	t.Run("API错误返回APIError", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodPost, "https://api.provider.test/v3/whitelabel/domains",
			httpmock.NewStringResponder(http.StatusUnauthorized, `{"errors":[{"message":"invalid api key"}]}`))

		_, err := client.Register(context.Background(), "example.com")

		require.Error(t, err)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})
}

func TestValidate(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	client := NewClient("https://api.provider.test/v3", "test-api-key")
	httpmock.ActivateNonDefault(client.httpClient)

	t.Run("校验通过", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodPost, "https://api.provider.test/v3/whitelabel/domains/12345/validate",
			httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
				"id":    12345,
				"valid": true,
				"validation_results": map[string]any{
					"mail_cname": map[string]any{"valid": true, "reason": nil},
					"dkim1":      map[string]any{"valid": true, "reason": nil},
				},
			}))

		result, err := client.Validate(context.Background(), 12345)

		require.NoError(t, err)
		assert.True(t, result.Valid)
		require.Len(t, result.SubChecks, 2)
		assert.Equal(t, "dkim1", result.SubChecks[0].Name)
		assert.True(t, result.SubChecks[0].Valid)
	})

	t.Run("部分子校验失败", func(t *testing.T) {
		httpmock.RegisterResponder(http.MethodPost, "https://api.provider.test/v3/whitelabel/domains/12345/validate",
			httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
				"id":    12345,
				"valid": false,
				"validation_results": map[string]any{
					"mail_cname": map[string]any{"valid": true},
					"dkim1":      map[string]any{"valid": false, "reason": "expected CNAME record not found"},
				},
			}))

		result, err := client.Validate(context.Background(), 12345)

		require.NoError(t, err)
		assert.False(t, result.Valid)
		require.Len(t, result.SubChecks, 2)
		assert.False(t, result.SubChecks[0].Valid)
		assert.Equal(t, "expected CNAME record not found", result.SubChecks[0].Reason)
		assert.True(t, result.SubChecks[1].Valid)
	})

	t.Run("未登记的域名直接拒绝", func(t *testing.T) {
		_, err := client.Validate(context.Background(), 0)

		assert.ErrorIs(t, err, ErrDomainNotRegistered)
	})
}
