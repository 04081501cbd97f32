package notify

import "testing"

func TestFeedSinkKeepsMostRecent(t *testing.T) {
	feed := NewFeed(3)
	for _, text := range []string{"a", "b", "c", "d"} {
		feed.Notify(Info(text))
	}

	recent := feed.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("容量为 3 时应保留 3 条，实际 %d", len(recent))
	}
	if recent[0].Text != "b" || recent[2].Text != "d" {
		t.Errorf("应丢弃最旧的消息: %+v", recent)
	}

	limited := feed.Recent(1)
	if len(limited) != 1 || limited[0].Text != "d" {
		t.Errorf("limit=1 应只返回最新一条: %+v", limited)
	}
}

func TestFanoutBroadcastsAndSkipsNil(t *testing.T) {
	a := NewFeed(4)
	b := NewFeed(4)
	fanout := NewFanout(a, nil, b)

	fanout.Notify(Success("done"))

	if len(a.Recent(0)) != 1 || len(b.Recent(0)) != 1 {
		t.Error("消息应广播到所有下游")
	}
	if a.Recent(0)[0].Kind != KindSuccess {
		t.Errorf("消息类别不正确: %s", a.Recent(0)[0].Kind)
	}
}
