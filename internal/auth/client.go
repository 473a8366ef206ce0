// auth/client.go
package auth

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"datasethub/internal/domain"
)

// RemoteValidator проверяет токены через внешний сервис аутентификации
type RemoteValidator struct {
	conn grpc.ClientConnInterface
}

func NewRemoteValidator(conn grpc.ClientConnInterface) *RemoteValidator {
	return &RemoteValidator{conn: conn}
}

func (c *RemoteValidator) ValidateToken(ctx context.Context, token string) (string, error) {
	md := metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	})
	ctx = metadata.NewOutgoingContext(ctx, md)

	userInfo := new(structpb.Struct)
	err := c.conn.Invoke(ctx, getUserMethod, &emptypb.Empty{}, userInfo)
	if err != nil {
		switch status.Code(err) {
		case codes.Unauthenticated:
			return "", fmt.Errorf("%w: %s", domain.ErrInvalidToken, status.Convert(err).Message())
		case codes.NotFound:
			return "", fmt.Errorf("%w: %s", domain.ErrNotFound, status.Convert(err).Message())
		}
		log.Printf("Error validating token via auth service: %v", err)
		return "", fmt.Errorf("auth service: %w", err)
	}

	username := userInfo.GetFields()["username"].GetStringValue()
	if username == "" {
		return "", fmt.Errorf("%w: auth service returned no username", domain.ErrInvalidToken)
	}

	return username, nil
}
