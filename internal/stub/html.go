package stub

// P2PPage is served at / in p2p mode when no document root is given.
// Connect offers sendrecv video and audio to the client over /ws;
// window.p2pState() reports the browser side for automated checks.
const P2PPage = `<!DOCTYPE html>
<html>
<head>
    <title>Momo P2P</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        button {
            background: #4285f4;
            color: white;
            border: none;
            padding: 12px 24px;
            border-radius: 4px;
            cursor: pointer;
            font-size: 16px;
            margin-right: 10px;
        }
        button:disabled { background: #ccc; cursor: not-allowed; }
        button.stop { background: #ea4335; }
        #status { margin: 20px 0; padding: 15px; border-radius: 4px; font-weight: 500; }
        .status-waiting { background: #fff3cd; color: #856404; }
        .status-connecting { background: #cce5ff; color: #004085; }
        .status-connected { background: #d4edda; color: #155724; }
        .status-error { background: #f8d7da; color: #721c24; }
        .status-closed { background: #e2e3e5; color: #383d41; }
        video { width: 100%; max-width: 640px; background: #000; border-radius: 4px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Momo P2P</h1>

        <div>
            <button id="connectBtn" onclick="connect()" disabled>Connect</button>
            <button id="disconnectBtn" onclick="disconnect()" class="stop" disabled>Disconnect</button>
        </div>

        <div id="status" class="status-waiting">Status: Opening signaling</div>

        <video id="remoteVideo" autoplay muted playsinline></video>
    </div>

    <script>
        let pc = null;
        let localStream = null;
        let pending = [];
        let haveAnswer = false;
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');

        function setStatus(message, type) {
            const status = document.getElementById('status');
            status.textContent = 'Status: ' + message;
            status.className = 'status-' + type;
        }

        function setButtons(connected) {
            document.getElementById('connectBtn').disabled = connected;
            document.getElementById('disconnectBtn').disabled = !connected;
        }

        window.p2pState = () => ({
            ws: ws.readyState,
            connection: pc ? pc.connectionState : 'none',
            ice: pc ? pc.iceConnectionState : 'none',
        });

        ws.onopen = () => {
            setStatus('Ready', 'waiting');
            setButtons(false);
        };
        ws.onerror = () => setStatus('Signaling error', 'error');
        ws.onclose = () => setStatus('Signaling closed', 'closed');
        ws.onmessage = async (event) => {
            const msg = JSON.parse(event.data);
            if (!pc) {
                return;
            }
            if (msg.type === 'answer') {
                await pc.setRemoteDescription(msg);
                haveAnswer = true;
                for (const c of pending) {
                    await pc.addIceCandidate(c);
                }
                pending = [];
            } else if (msg.type === 'candidate') {
                if (haveAnswer) {
                    await pc.addIceCandidate(msg.ice);
                } else {
                    pending.push(msg.ice);
                }
            } else if (msg.type === 'close') {
                disconnect();
            }
        };

        async function connect() {
            setButtons(true);
            try {
                setStatus('Requesting media...', 'connecting');
                localStream = await navigator.mediaDevices.getUserMedia({
                    video: { width: 640, height: 480, frameRate: 30 },
                    audio: true
                });

                pc = new RTCPeerConnection({ iceServers: [] });
                localStream.getTracks().forEach(track => pc.addTrack(track, localStream));
                pc.ontrack = (event) => {
                    document.getElementById('remoteVideo').srcObject = event.streams[0] || new MediaStream([event.track]);
                };
                pc.onicecandidate = (event) => {
                    if (event.candidate) {
                        ws.send(JSON.stringify({ type: 'candidate', ice: event.candidate }));
                    }
                };
                pc.onconnectionstatechange = () => {
                    if (pc.connectionState === 'connected') {
                        setStatus('Connected', 'connected');
                    } else if (pc.connectionState === 'failed') {
                        setStatus('Connection failed', 'error');
                    }
                };

                const offer = await pc.createOffer();
                await pc.setLocalDescription(offer);
                setStatus('Sending offer...', 'connecting');
                ws.send(JSON.stringify(pc.localDescription));
            } catch (err) {
                setStatus('Error: ' + err.message, 'error');
                disconnect();
            }
        }

        function disconnect() {
            if (pc) {
                pc.close();
                pc = null;
                if (ws.readyState === WebSocket.OPEN) {
                    ws.send(JSON.stringify({ type: 'close' }));
                }
            }
            if (localStream) {
                localStream.getTracks().forEach(track => track.stop());
                localStream = null;
            }
            pending = [];
            haveAnswer = false;
            document.getElementById('remoteVideo').srcObject = null;
            setButtons(false);
            setStatus('Disconnected', 'closed');
        }
    </script>
</body>
</html>`
