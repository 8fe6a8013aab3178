package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// mockPod is one pod of the simulated cluster. An empty Reason means healthy.
type mockPod struct {
	Name       string `json:"name"`
	Namespace  string `json:"namespace"`
	Deployment string `json:"deployment"`
	Node       string `json:"node"`
	Reason     string `json:"reason,omitempty"`
}

type mockNode struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

type mockEndpoint struct {
	URL string `json:"url"`
	Up  bool   `json:"up"`
}

// cluster is the mutable state the mock agent acts on. Corrective actions
// heal matching pods so a remediation run can genuinely verify afterwards.
type cluster struct {
	mu        sync.Mutex
	pods      []*mockPod
	nodes     []*mockNode
	endpoints []*mockEndpoint
	limits    map[string]string
}

func seededCluster() *cluster {
	return &cluster{
		pods: []*mockPod{
			{Name: "payment-api-7d9f-1", Namespace: "payments", Deployment: "payment-api", Node: "node-a", Reason: "OOMKilled"},
			{Name: "payment-api-7d9f-2", Namespace: "payments", Deployment: "payment-api", Node: "node-b", Reason: "OOMKilled"},
			{Name: "payment-api-7d9f-3", Namespace: "payments", Deployment: "payment-api", Node: "node-a"},
			{Name: "web-5c4b-1", Namespace: "web", Deployment: "web", Node: "node-b", Reason: "CrashLoopBackOff"},
			{Name: "ingest-9a1c-1", Namespace: "data", Deployment: "ingest", Node: "node-c", Reason: "ImagePullBackOff"},
			{Name: "ingest-9a1c-2", Namespace: "data", Deployment: "ingest", Node: "node-a"},
		},
		nodes: []*mockNode{
			{Name: "node-a", Ready: true},
			{Name: "node-b", Ready: true},
			{Name: "node-c", Ready: false},
		},
		endpoints: []*mockEndpoint{
			{URL: "http://web.web.svc/healthz", Up: false},
			{URL: "http://payment-api.payments.svc/healthz", Up: true},
		},
		limits: map[string]string{},
	}
}

type actionRequest struct {
	RunID  string `json:"run_id"`
	Action string `json:"action"`
	Kind   string `json:"kind"`
	Params struct {
		Namespace   string `json:"namespace"`
		Selector    string `json:"selector"`
		Reason      string `json:"reason"`
		Deployment  string `json:"deployment"`
		Container   string `json:"container"`
		MemoryLimit string `json:"memory_limit"`
		CPULimit    string `json:"cpu_limit"`
		Image       string `json:"image"`
		Replicas    int    `json:"replicas"`
		Revision    int    `json:"revision"`
		Node        string `json:"node"`
		Endpoint    string `json:"endpoint"`
	} `json:"params"`
}

type actionResponse struct {
	Success bool     `json:"success"`
	Output  string   `json:"output,omitempty"`
	Targets []string `json:"targets,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type conditionQuery struct {
	Check      string `json:"check"`
	Namespace  string `json:"namespace"`
	Selector   string `json:"selector"`
	Reason     string `json:"reason"`
	Deployment string `json:"deployment"`
	Endpoint   string `json:"endpoint"`
}

type queryResponse struct {
	Matches []string `json:"matches,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

func (c *cluster) execute(req actionRequest) actionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := req.Params
	switch req.Kind {
	case "identify_pods":
		targets := c.podNames(p.Namespace, p.Deployment, p.Selector, p.Reason)
		return actionResponse{Success: true, Targets: targets, Output: fmt.Sprintf("%d pods match", len(targets))}

	case "identify_nodes":
		var targets []string
		for _, n := range c.nodes {
			if p.Node != "" && n.Name != p.Node {
				continue
			}
			if !n.Ready {
				targets = append(targets, n.Name)
			}
		}
		return actionResponse{Success: true, Targets: targets, Output: fmt.Sprintf("%d nodes match", len(targets))}

	case "collect_pod_logs":
		targets := c.podNames(p.Namespace, p.Deployment, p.Selector, p.Reason)
		var b strings.Builder
		for _, t := range targets {
			fmt.Fprintf(&b, "%s: container terminated (%s)\n", t, p.Reason)
		}
		return actionResponse{Success: true, Targets: targets, Output: b.String()}

	case "restart_pods", "delete_pods":
		targets := c.healPods(p.Namespace, "", p.Selector, p.Reason)
		return actionResponse{Success: true, Targets: targets, Output: fmt.Sprintf("%s: %d pods", req.Kind, len(targets))}

	case "increase_memory_limits":
		key := p.Namespace + "/" + p.Deployment + "/memory"
		if _, ok := c.limits[key]; !ok {
			c.limits[key] = "512Mi"
		}
		targets := c.healPods(p.Namespace, p.Deployment, p.Selector, "OOMKilled")
		return actionResponse{Success: true, Targets: targets,
			Output: fmt.Sprintf("memory limit set to %s (was %s)", p.MemoryLimit, c.limits[key])}

	case "restore_memory_limits":
		key := p.Namespace + "/" + p.Deployment + "/memory"
		prev, ok := c.limits[key]
		if !ok {
			return actionResponse{Success: false, Error: "no recorded memory limit to restore"}
		}
		delete(c.limits, key)
		return actionResponse{Success: true, Output: "memory limit restored to " + prev}

	case "adjust_cpu_limits":
		key := p.Namespace + "/" + p.Deployment + "/cpu"
		if _, ok := c.limits[key]; !ok {
			c.limits[key] = "500m"
		}
		targets := c.healPods(p.Namespace, p.Deployment, p.Selector, "CPUThrottled")
		return actionResponse{Success: true, Targets: targets,
			Output: fmt.Sprintf("cpu limit set to %s (was %s)", p.CPULimit, c.limits[key])}

	case "restore_cpu_limits":
		key := p.Namespace + "/" + p.Deployment + "/cpu"
		prev, ok := c.limits[key]
		if !ok {
			return actionResponse{Success: false, Error: "no recorded cpu limit to restore"}
		}
		delete(c.limits, key)
		return actionResponse{Success: true, Output: "cpu limit restored to " + prev}

	case "restart_deployment", "rollback_deployment", "update_image":
		targets := c.healPods(p.Namespace, p.Deployment, "", "")
		c.reviveEndpoints(p.Namespace)
		return actionResponse{Success: true, Targets: targets, Output: req.Kind + " " + p.Deployment}

	case "scale_deployment":
		targets := c.healPods(p.Namespace, p.Deployment, "", "")
		for i := len(targets); i < p.Replicas; i++ {
			name := fmt.Sprintf("%s-scaled-%d", p.Deployment, i+1)
			c.pods = append(c.pods, &mockPod{Name: name, Namespace: p.Namespace, Deployment: p.Deployment, Node: "node-a"})
			targets = append(targets, name)
		}
		c.reviveEndpoints(p.Namespace)
		return actionResponse{Success: true, Targets: targets, Output: fmt.Sprintf("scaled %s to %d replicas", p.Deployment, p.Replicas)}

	case "cordon_node", "drain_node":
		for _, n := range c.nodes {
			if n.Name == p.Node {
				n.Ready = false
				if req.Kind == "drain_node" {
					c.evictPods(p.Node)
				}
				return actionResponse{Success: true, Targets: []string{n.Name}, Output: req.Kind + " " + n.Name}
			}
		}
		return actionResponse{Success: false, Error: "unknown node " + p.Node}

	case "uncordon_node":
		for _, n := range c.nodes {
			if n.Name == p.Node {
				n.Ready = true
				return actionResponse{Success: true, Targets: []string{n.Name}, Output: "uncordoned " + n.Name}
			}
		}
		return actionResponse{Success: false, Error: "unknown node " + p.Node}

	case "check_endpoint":
		for _, e := range c.endpoints {
			if e.URL == p.Endpoint {
				if e.Up {
					return actionResponse{Success: true, Output: "endpoint responded 200"}
				}
				return actionResponse{Success: true, Targets: []string{e.URL}, Output: "endpoint unreachable"}
			}
		}
		return actionResponse{Success: true, Output: "endpoint responded 200"}
	}

	return actionResponse{Success: false, Error: "unsupported action kind " + req.Kind}
}

func (c *cluster) query(cond conditionQuery) queryResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cond.Check {
	case "pods_in_state":
		matches := c.podNames(cond.Namespace, cond.Deployment, cond.Selector, cond.Reason)
		return queryResponse{Matches: matches, Detail: fmt.Sprintf("%d pods in %s", len(matches), cond.Reason)}

	case "deployment_unavailable":
		unhealthy := c.podNames(cond.Namespace, cond.Deployment, "", "")
		if len(unhealthy) > 0 {
			return queryResponse{Matches: []string{cond.Deployment}, Detail: strings.Join(unhealthy, ", ")}
		}
		return queryResponse{}

	case "endpoint_down":
		for _, e := range c.endpoints {
			if e.URL == cond.Endpoint && !e.Up {
				return queryResponse{Matches: []string{e.URL}, Detail: "endpoint unreachable"}
			}
		}
		return queryResponse{}

	case "nodes_not_ready":
		var matches []string
		for _, n := range c.nodes {
			if !n.Ready {
				matches = append(matches, n.Name)
			}
		}
		return queryResponse{Matches: matches}
	}

	return queryResponse{Detail: "unsupported check " + cond.Check}
}

// podNames lists unhealthy pods scoped by the non-empty filters. An empty
// reason matches any unhealthy pod; selector matching approximates label
// selectors by deployment-name containment.
func (c *cluster) podNames(namespace, deployment, selector, reason string) []string {
	var names []string
	for _, p := range c.pods {
		if p.Reason == "" {
			continue
		}
		if !c.podMatches(p, namespace, deployment, selector, reason) {
			continue
		}
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func (c *cluster) healPods(namespace, deployment, selector, reason string) []string {
	var names []string
	for _, p := range c.pods {
		if p.Reason == "" {
			continue
		}
		if !c.podMatches(p, namespace, deployment, selector, reason) {
			continue
		}
		p.Reason = ""
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func (c *cluster) podMatches(p *mockPod, namespace, deployment, selector, reason string) bool {
	if namespace != "" && p.Namespace != namespace {
		return false
	}
	if deployment != "" && p.Deployment != deployment {
		return false
	}
	if selector != "" && !strings.Contains(selector, p.Deployment) {
		return false
	}
	if reason != "" && p.Reason != reason {
		return false
	}
	return true
}

func (c *cluster) evictPods(node string) {
	for _, p := range c.pods {
		if p.Node == node {
			p.Reason = ""
		}
	}
}

// reviveEndpoints marks endpoints of a namespace healthy again once its
// workloads were restarted.
func (c *cluster) reviveEndpoints(namespace string) {
	for _, e := range c.endpoints {
		if strings.Contains(e.URL, "."+namespace+".svc") {
			e.Up = true
		}
	}
}

func (c *cluster) snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"pods":      c.pods,
		"nodes":     c.nodes,
		"endpoints": c.endpoints,
	}
}

func (c *cluster) reset() {
	fresh := seededCluster()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pods = fresh.pods
	c.nodes = fresh.nodes
	c.endpoints = fresh.endpoints
	c.limits = fresh.limits
}

func main() {
	state := seededCluster()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/actions/execute", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, state.execute(req))
	})

	mux.HandleFunc("/api/v1/conditions/query", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var cond conditionQuery
		if err := json.NewDecoder(r.Body).Decode(&cond); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, state.query(cond))
	})

	mux.HandleFunc("/api/v1/dev/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, state.snapshot())
	})

	mux.HandleFunc("/api/v1/dev/reset", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		state.reset()
		writeJSON(w, map[string]string{"status": "reseeded"})
	})

	logger := log.New(log.Writer(), "agent-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8089",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8089")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
