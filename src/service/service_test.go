package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/consensus"
	"github.com/mosaicnetworks/eventcore/src/pipeline"
	"github.com/mosaicnetworks/eventcore/src/simulation"
	"github.com/mosaicnetworks/eventcore/src/snapshot"
)

func TestService(t *testing.T) {
	network, err := simulation.NewNetwork(simulation.Config{Nodes: 4, Seed: 1, Consensus: consensus.DefaultConfig()},
		common.NewTestEntry(t, "simulation"))
	require.NoError(t, err)
	events, err := network.Generate(200)
	require.NoError(t, err)

	store := snapshot.NewInmemStore()
	conf := pipeline.TestConfig(t)
	conf.OutputCapacity = 4096
	node := pipeline.NewNode(conf, network.Book(), store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go node.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-node.Done()
	})

	for _, e := range events {
		require.NoError(t, node.Submit(ctx, e))
	}
	status, err := node.Status(ctx)
	require.NoError(t, err)

	service := NewService("", node, network.Book(), store, common.NewTestEntry(t, "service"))
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := map[string]string{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, "Running", stats["state"])
	assert.Equal(t, "birth-round", stats["ancient_mode"])
	assert.Equal(t, "4", stats["peers"])

	snapResp, err := http.Get(server.URL + "/snapshot/latest")
	require.NoError(t, err)
	defer snapResp.Body.Close()
	require.Equal(t, http.StatusOK, snapResp.StatusCode)

	var snap snapshot.Snapshot
	require.NoError(t, json.NewDecoder(snapResp.Body).Decode(&snap))
	assert.Equal(t, status.LastDecidedRound, snap.Round)

	missing, err := http.Get(server.URL + "/snapshot/100000")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	bad, err := http.Get(server.URL + "/snapshot/abc")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	post, err := http.Post(server.URL+"/stats", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)

	peersResp, err := http.Get(server.URL + "/peers")
	require.NoError(t, err)
	defer peersResp.Body.Close()

	var list []map[string]interface{}
	require.NoError(t, json.NewDecoder(peersResp.Body).Decode(&list))
	assert.Len(t, list, 4)
}
