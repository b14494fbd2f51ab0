package middleware

import (
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/client"
)

// ParamsKey is the echo context key holding the parsed webhook form.
const ParamsKey = "twilioParams"

// TwilioConfig controls webhook signature checks.
type TwilioConfig struct {
	AuthToken string
	// Validate turns the signature check off for local testing; params are still parsed.
	Validate bool
	// RequestURL reconstructs the public URL Twilio signed.
	RequestURL func(r *http.Request) string
}

// TwilioAuth parses the webhook form into ParamsKey and rejects requests whose
// X-Twilio-Signature does not match.
func TwilioAuth(cfg TwilioConfig) echo.MiddlewareFunc {
	validator := client.NewRequestValidator(cfg.AuthToken)
	if !cfg.Validate {
		log.Println("[middleware] Twilio signature validation disabled")
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Validate && cfg.AuthToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}

			bodyBytes, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			formData, err := url.ParseQuery(string(bodyBytes))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}
			params := make(map[string]string, len(formData))
			for key, values := range formData {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			if cfg.Validate {
				signature := c.Request().Header.Get("X-Twilio-Signature")
				if signature == "" || !validator.Validate(requestURL(cfg, c.Request()), params, signature) {
					return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
				}
			}

			c.Set(ParamsKey, params)
			return next(c)
		}
	}
}

func requestURL(cfg TwilioConfig, r *http.Request) string {
	if cfg.RequestURL != nil {
		return cfg.RequestURL(r)
	}
	return "https://" + r.Host + r.URL.RequestURI()
}

// Params returns the parsed webhook form set by TwilioAuth.
func Params(c echo.Context) map[string]string {
	if p, ok := c.Get(ParamsKey).(map[string]string); ok {
		return p
	}
	return map[string]string{}
}
