package config

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
)

const ssmMaxRetries = 3

// ResolveSecrets fills the Twilio auth token from SSM Parameter Store when
// it is not set directly and a parameter name is configured.
func (cfg *Config) ResolveSecrets(api ssmiface.SSMAPI) error {
	return cfg.resolveSecrets(api, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), ssmMaxRetries))
}

func (cfg *Config) resolveSecrets(api ssmiface.SSMAPI, b backoff.BackOff) error {
	if cfg.Twilio.AuthToken != "" || cfg.Twilio.AuthTokenParameter == "" {
		return nil
	}

	var out *ssm.GetParameterOutput
	err := backoff.Retry(func() error {
		var err error
		out, err = api.GetParameter(&ssm.GetParameterInput{
			Name:           aws.String(cfg.Twilio.AuthTokenParameter),
			WithDecryption: aws.Bool(true),
		})
		return err
	}, b)
	if err != nil {
		return errors.Wrapf(err, "get parameter %s", cfg.Twilio.AuthTokenParameter)
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		return errors.Errorf("parameter %s has no value", cfg.Twilio.AuthTokenParameter)
	}
	cfg.Twilio.AuthToken = aws.StringValue(out.Parameter.Value)
	return nil
}
