package xactor

import "context"

type result struct {
	resp interface{}
	err  error
}

type mail struct {
	ctx      context.Context
	req      interface{}
	t        mailType
	resultCh chan *result
}

func newMail(ctx context.Context, t mailType, req interface{}) *mail {
	return &mail{ctx: ctx, t: t, req: req, resultCh: make(chan *result, 1)}
}

type mailBox struct {
	mailCh chan *mail
}

func newMailBox() *mailBox {
	return &mailBox{mailCh: make(chan *mail, mailMaxCount)}
}

func (box *mailBox) recvMail() <-chan *mail {
	return box.mailCh
}

// 阻塞投递, actor关闭后返回false
func (box *mailBox) sendMail(m *mail, closeCh <-chan struct{}) bool {
	select {
	case <-closeCh:
		return false
	default:
	}
	select {
	case box.mailCh <- m:
		return true
	case <-closeCh:
		return false
	}
}

// 非阻塞投递, mailbox已满或actor已关闭时返回false
func (box *mailBox) trySendMail(m *mail, closeCh <-chan struct{}) bool {
	select {
	case <-closeCh:
		return false
	default:
	}
	select {
	case box.mailCh <- m:
		return true
	default:
		return false
	}
}
