// Package lark implements the out-of-band chat channel used for trip
// notifications. Delivery is best-effort; the workflow never waits on it.
package lark

import (
	"context"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/sirupsen/logrus"
)

// Config holds the bot app credentials.
type Config struct {
	AppID     string
	AppSecret string
}

// Client wraps the Lark SDK messaging client. Users link their open id in
// their profile; messages are addressed by that id.
type Client struct {
	client *lark.Client
	log    *logrus.Entry
}

// NewClient creates a new chat channel client.
func NewClient(cfg Config) *Client {
	return &Client{
		client: lark.NewClient(cfg.AppID, cfg.AppSecret,
			lark.WithLogLevel(larkcore.LogLevelInfo),
			lark.WithEnableTokenCache(true),
		),
		log: logrus.WithField("component", "lark"),
	}
}

// SendText sends a plain text message to the user behind openID. Transport
// errors come back as-is so the caller can classify them for retry; API
// level failures are terminal.
func (c *Client) SendText(ctx context.Context, openID, text string) error {
	content, err := textContent(text)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeOpenId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType(larkim.MsgTypeText).
			Content(content).
			Build()).
		Build()

	resp, err := c.client.Im.Message.Create(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Success() {
		c.log.WithFields(logrus.Fields{
			"open_id": openID,
			"code":    resp.Code,
			"msg":     resp.Msg,
		}).Warn("lark message rejected")
		return fmt.Errorf("lark api error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	return nil
}
