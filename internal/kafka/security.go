package kafka

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"fmt"
	"hash"

	"github.com/IBM/sarama"
	signer "github.com/aws/aws-msk-iam-sasl-signer-go/signer"
	"github.com/xdg-go/scram"
)

// DefaultAWSRegion is used for MSK IAM tokens when no region is configured.
const DefaultAWSRegion = "us-east-1"

// Ensure implementations satisfy sarama interfaces at compile time.
var (
	_ sarama.SCRAMClient         = (*XDGSCRAMClient)(nil)
	_ sarama.AccessTokenProvider = (*MSKAccessTokenProvider)(nil)
)

// XDGSCRAMClient implements sarama.SCRAMClient for SCRAM authentication.
type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

// Begin starts the SCRAM authentication process.
func (x *XDGSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

// Step performs a step in the SCRAM authentication.
func (x *XDGSCRAMClient) Step(challenge string) (response string, err error) {
	return x.ClientConversation.Step(challenge)
}

// Done indicates if authentication is complete.
func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}

// SHA256 returns a SHA256 hash generator.
func SHA256() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha256.New() }
}

// SHA512 returns a SHA512 hash generator.
func SHA512() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha512.New() }
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS MSK IAM authentication.
type MSKAccessTokenProvider struct {
	region string
}

// Token generates an AWS MSK IAM authentication token from the default
// credential chain.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	token, expiryMs, err := signer.GenerateAuthToken(context.Background(), m.region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}

	return &sarama.AccessToken{
		Token: token,
		Extensions: map[string]string{
			"expiry": fmt.Sprintf("%d", expiryMs),
		},
	}, nil
}

// configureSecurity applies the security protocol and SASL mechanism to a
// sarama config shared by the consumer and the DLQ producer.
func configureSecurity(config *sarama.Config, kafkaConfig ConsumerConfig) error {
	switch kafkaConfig.SecurityProtocol {
	case "", "PLAINTEXT":
		return nil

	case "SASL_PLAINTEXT", "SASL_SSL":
		config.Net.SASL.Enable = true

		switch kafkaConfig.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword

		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256()}
			}

		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512()}
			}

		case "AWS_MSK_IAM":
			config.Net.SASL.Mechanism = sarama.SASLTypeOAuth

			// OAUTHBEARER ignores these but sarama validates they are set.
			config.Net.SASL.User = "token"
			config.Net.SASL.Password = "token"

			region := kafkaConfig.AWSRegion
			if region == "" {
				region = DefaultAWSRegion
			}
			config.Net.SASL.TokenProvider = &MSKAccessTokenProvider{region: region}

		default:
			return fmt.Errorf("unsupported SASL mechanism: %s", kafkaConfig.SASLMechanism)
		}

		if kafkaConfig.SecurityProtocol == "SASL_SSL" {
			config.Net.TLS.Enable = true
			config.Net.TLS.Config = tlsConfig(kafkaConfig)
		}

	case "SSL":
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = tlsConfig(kafkaConfig)

	default:
		return fmt.Errorf("unsupported security protocol: %s", kafkaConfig.SecurityProtocol)
	}

	return nil
}

func tlsConfig(kafkaConfig ConsumerConfig) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: kafkaConfig.TLSInsecureSkipVerify, //nolint:gosec // opt-in for self-signed dev clusters
	}
}
