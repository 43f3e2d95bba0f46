package interfaces

import "context"

type CaptchaDecoder interface {
	Decode(ctx context.Context, imageBase64 string) (string, error)
}
