package main

import (
	"net/http"
)

func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FlowFence Dashboard</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #0f766e 0%, #134e4a 100%);
            min-height: 100vh;
            padding: 20px;
        }
        .container { max-width: 1100px; margin: 0 auto; }
        .header { text-align: center; color: white; margin-bottom: 30px; }
        .header h1 { font-size: 2.4em; margin-bottom: 8px; }
        .header p { opacity: 0.85; }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 18px;
            margin-bottom: 28px;
        }
        .stat-card {
            background: white;
            border-radius: 10px;
            padding: 22px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.12);
        }
        .stat-label {
            color: #666;
            font-size: 0.85em;
            text-transform: uppercase;
            letter-spacing: 1px;
            margin-bottom: 8px;
        }
        .stat-value { font-size: 2.3em; font-weight: bold; color: #333; }
        .stat-value.success { color: #10b981; }
        .stat-value.danger { color: #ef4444; }
        .stat-value.info { color: #0d9488; }
        .table-card {
            background: white;
            border-radius: 10px;
            padding: 22px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.12);
        }
        .table-card h2 { margin-bottom: 16px; color: #333; }
        table { width: 100%; border-collapse: collapse; }
        th {
            text-align: left;
            padding: 10px;
            background: #f3f4f6;
            color: #666;
            font-size: 0.85em;
            text-transform: uppercase;
        }
        td { padding: 10px; border-bottom: 1px solid #e5e7eb; }
        tr:last-child td { border-bottom: none; }
        .empty { text-align: center; color: #999; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>🚦 FlowFence</h1>
            <p>Real-time Rate Limiting Dashboard</p>
        </div>

        <div class="stats-grid">
            <div class="stat-card">
                <div class="stat-label">Total Checks</div>
                <div class="stat-value info" id="totalChecks">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Conformed</div>
                <div class="stat-value success" id="conformedChecks">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Rejected</div>
                <div class="stat-value danger" id="rejectedChecks">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Unique Clients</div>
                <div class="stat-value" id="uniqueClients">0</div>
            </div>
        </div>

        <div class="table-card">
            <h2>Top Clients</h2>
            <table>
                <thead>
                    <tr>
                        <th>Client ID</th>
                        <th>Checks</th>
                        <th>Conformed</th>
                        <th>Rejected</th>
                        <th>Last Seen</th>
                    </tr>
                </thead>
                <tbody id="topClients">
                    <tr><td colspan="5" class="empty">Loading...</td></tr>
                </tbody>
            </table>
        </div>
    </div>

    <script>
        async function refresh() {
            try {
                const response = await fetch('/stats');
                const data = await response.json();
                render(data);
            } catch (error) {
                console.error('Failed to fetch stats:', error);
            }
        }

        function render(data) {
            document.getElementById('totalChecks').textContent = data.total_checks.toLocaleString();
            document.getElementById('conformedChecks').textContent = data.conformed_checks.toLocaleString();
            document.getElementById('rejectedChecks').textContent = data.rejected_checks.toLocaleString();
            document.getElementById('uniqueClients').textContent = data.unique_clients.toLocaleString();

            const tbody = document.getElementById('topClients');
            if (!data.top_clients || data.top_clients.length === 0) {
                tbody.innerHTML = '<tr><td colspan="5" class="empty">No checks yet</td></tr>';
                return;
            }
            tbody.innerHTML = data.top_clients.map(function(client) {
                const lastSeen = new Date(client.last_seen).toLocaleTimeString();
                return '<tr>' +
                    '<td><strong>' + client.client_id + '</strong></td>' +
                    '<td>' + client.checks.toLocaleString() + '</td>' +
                    '<td>' + client.conformed + '</td>' +
                    '<td>' + client.rejected + '</td>' +
                    '<td>' + lastSeen + '</td>' +
                    '</tr>';
            }).join('');
        }

        refresh();
        setInterval(refresh, 2000);
    </script>
</body>
</html>`
